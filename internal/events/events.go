package events

import "context"

// Event types
const (
	EventSOAStatusChanged  = "soa_status_changed"
	EventArtifactGenerated = "artifact_generated"
)

// StreamSOA is the pub/sub channel carrying record lifecycle events.
const StreamSOA = "events:soa"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
