package realtime

import (
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// ImportProgress is the payload pushed to an import topic after each
// processed chunk.
type ImportProgress struct {
	ImportId  string `json:"importId"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
}

// Broadcaster turns committed domain mutations into typed events on the
// right topic. Callers must invoke it only after the backing write has
// succeeded, so a pushed event never precedes its REST-visible state.
type Broadcaster struct {
	logger   *zap.Logger
	registry Registry

	seq atomic.Uint64
}

func NewBroadcaster(logger *zap.Logger, registry Registry) *Broadcaster {
	return &Broadcaster{
		logger:   logger,
		registry: registry,
	}
}

func (b *Broadcaster) Publish(topic string, kind EventKind, payload any) Event {
	event := Event{
		Id:        gonanoid.Must(),
		Seq:       b.seq.Add(1),
		Topic:     topic,
		Kind:      kind,
		Payload:   payload,
		EmittedAt: time.Now(),
	}

	b.logger.Debug("publishing event",
		zap.String("topic", topic),
		zap.String("kind", string(kind)),
		zap.Uint64("seq", event.Seq))

	b.registry.Publish(event)

	return event
}

// EntityChanged publishes a mutation of a tracked entity to the public
// entity-list topic. Payload is the full entity for created/updated and the
// bare id for deleted.
func (b *Broadcaster) EntityChanged(kind EventKind, payload any) Event {
	return b.Publish(TopicProjects, kind, payload)
}

func (b *Broadcaster) ImportProgressed(progress ImportProgress) Event {
	return b.Publish(ImportTopic(progress.ImportId), KindImportProgress, progress)
}

func (b *Broadcaster) NotificationCreated(userId string, notification any) Event {
	return b.Publish(UserTopic(userId), KindNotificationNew, notification)
}
