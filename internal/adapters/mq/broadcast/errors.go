package broadcast

import "errors"

// ErrEmptyUser is returned for invalidations without a user.
var ErrEmptyUser = errors.New("invalidation without user")
