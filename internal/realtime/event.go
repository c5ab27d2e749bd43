package realtime

import "time"

type EventKind string

const (
	KindProjectCreated  EventKind = "project:created"
	KindProjectUpdated  EventKind = "project:updated"
	KindProjectDeleted  EventKind = "project:deleted"
	KindImportProgress  EventKind = "import:progress"
	KindNotificationNew EventKind = "notification:new"
)

// Event is an immutable record of a server-side state change, published to
// exactly one topic. Delivery is fire-and-forget: events that find zero
// subscribers are dropped, never queued or persisted.
type Event struct {
	Id        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Topic     string    `json:"topic"`
	Kind      EventKind `json:"kind"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emittedAt"`
}
