package eventstream

import "context"

// Publisher publishes function events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *FunctionEvent) error
	Close() error
}
