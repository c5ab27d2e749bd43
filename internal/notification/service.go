package notification

import (
	"context"
	"time"

	"github.com/goevery/tracker/internal/realtime"
	"go.uber.org/zap"
)

type CreateInput struct {
	Type    string            `json:"type"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

type Service struct {
	logger      *zap.Logger
	store       Store
	broadcaster *realtime.Broadcaster
}

func NewService(
	logger *zap.Logger,
	store Store,
	broadcaster *realtime.Broadcaster,
) *Service {
	return &Service{
		logger,
		store,
		broadcaster,
	}
}

// Create persists the notification and then pushes it to the owner's topic.
// The push happens strictly after the store write returns, so a client can
// always fetch over REST anything it saw pushed.
func (s *Service) Create(ctx context.Context, userId string, input CreateInput) (Notification, error) {
	created := Notification{
		Id:        NewNotificationId(),
		UserId:    userId,
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		IsRead:    false,
		Data:      input.Data,
		CreatedAt: time.Now(),
	}

	err := s.store.Insert(ctx, created)
	if err != nil {
		return Notification{}, err
	}

	s.broadcaster.NotificationCreated(userId, created)

	return created, nil
}

func (s *Service) List(ctx context.Context, userId string, opts ListOptions) ([]Notification, error) {
	return s.store.List(ctx, userId, opts)
}

func (s *Service) CountUnread(ctx context.Context, userId string) (int64, error) {
	return s.store.CountUnread(ctx, userId)
}

func (s *Service) MarkRead(ctx context.Context, userId string, id string) error {
	return s.store.MarkRead(ctx, userId, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userId string) error {
	return s.store.MarkAllRead(ctx, userId)
}

func (s *Service) Delete(ctx context.Context, userId string, id string) error {
	return s.store.Delete(ctx, userId, id)
}

func (s *Service) DeleteRead(ctx context.Context, userId string) (int64, error) {
	return s.store.DeleteRead(ctx, userId)
}
