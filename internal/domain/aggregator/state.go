package aggregator

// Phase is the playback state of one video inside a session.
type Phase int

// Playback phases.
const (
	PhaseUnstarted Phase = iota
	PhasePlaying
	PhasePaused
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseUnstarted:
		return "unstarted"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// videoState is the per-video bookkeeping of a session.
type videoState struct {
	phase           Phase
	enqueued        bool  // at least one sample of this video was enqueued
	lastEnqueuedPos int64 // position of the most recently enqueued sample
	reference       string
}

// Enqueue triggers, also used as metric labels.
const (
	triggerFirst      = "first"
	triggerCompletion = "completion"
	triggerDelta      = "delta"
)
