package dedupe

// Option configures an InMemory deduper.
type Option func(*InMemory)

// WithMaxSize bounds the number of remembered ids. Values below one are
// raised to one.
func WithMaxSize(n int) Option {
	return func(d *InMemory) {
		d.maxSize = n
	}
}
