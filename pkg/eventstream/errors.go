package eventstream

import "errors"

// ErrNilEvent indicates a nil function event payload was provided to a publisher.
var ErrNilEvent = errors.New("nil function event")
