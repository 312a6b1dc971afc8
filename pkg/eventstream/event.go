package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/fnindex/pkg/function"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeFunctionAdded is emitted after a function is registered.
	EventTypeFunctionAdded = "fnindex.function.added"

	// EventTypeFunctionUpdated is emitted after a function is updated.
	EventTypeFunctionUpdated = "fnindex.function.updated"

	// EventTypeFunctionDeleted is emitted after a function is deleted.
	EventTypeFunctionDeleted = "fnindex.function.deleted"

	// EventTypeCollectionCleared is emitted after every function is removed.
	EventTypeCollectionCleared = "fnindex.collection.cleared"
)

// FunctionEvent is a transport-neutral event payload for a registry mutation.
type FunctionEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// Function fields are empty for collection-wide events.
	FunctionID string `json:"function_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Category   string `json:"category,omitempty"`
	Version    string `json:"version,omitempty"`
}

// NewFunctionEvent builds an event of eventType describing f. f may be nil
// for collection-wide events.
func NewFunctionEvent(eventType string, f *function.Function, now time.Time) *FunctionEvent {
	ev := &FunctionEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
	}
	if f != nil {
		ev.FunctionID = f.ID
		ev.Name = f.Name
		ev.Category = f.Category
		ev.Version = f.Version
	}
	return ev
}

// Key is the partition key for the event. Events for one function share a
// key so consumers see them in order.
func (e *FunctionEvent) Key() string {
	if e.FunctionID == "" {
		return e.EventType
	}
	return e.FunctionID
}
