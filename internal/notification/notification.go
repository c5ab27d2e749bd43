package notification

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Notification is a server-owned record delivered over the owner's private
// topic when they are connected, and independently fetchable over REST.
type Notification struct {
	Id        string            `json:"id" bson:"_id"`
	UserId    string            `json:"userId" bson:"userId"`
	Type      string            `json:"type" bson:"type"`
	Title     string            `json:"title" bson:"title"`
	Message   string            `json:"message" bson:"message"`
	IsRead    bool              `json:"isRead" bson:"isRead"`
	Data      map[string]string `json:"data,omitempty" bson:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt" bson:"createdAt"`
}

// NewNotificationId generates a ULID. Ids sort by creation time, which keeps
// the most-recent-first list order a plain descending id sort.
func NewNotificationId() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

type Store interface {
	Setup(ctx context.Context) error
	Insert(ctx context.Context, notification Notification) error
	List(ctx context.Context, userId string, opts ListOptions) ([]Notification, error)
	CountUnread(ctx context.Context, userId string) (int64, error)
	MarkRead(ctx context.Context, userId string, id string) error
	MarkAllRead(ctx context.Context, userId string) error
	Delete(ctx context.Context, userId string, id string) error
	DeleteRead(ctx context.Context, userId string) (int64, error)
}
