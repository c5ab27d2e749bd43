package project

import (
	"context"
	"time"

	"github.com/goevery/tracker/internal/realtime"
	"go.uber.org/zap"
)

type CreateInput struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Owner  string `json:"owner"`
}

type UpdateInput struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DeletedPayload is what a deletion event carries: just the id, since the
// entity no longer exists server-side.
type DeletedPayload struct {
	Id string `json:"id"`
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

// Mutations broadcast only after the store write returns, keeping pushed
// events behind or at REST visibility.

func (s *Service) Create(ctx context.Context, input CreateInput) (Project, error) {
	created := Project{
		Id:        NewProjectId(),
		Name:      input.Name,
		Status:    input.Status,
		Owner:     input.Owner,
		UpdatedAt: time.Now(),
	}

	err := s.store.Insert(ctx, created)
	if err != nil {
		return Project{}, err
	}

	s.broadcaster.EntityChanged(realtime.KindProjectCreated, created)

	return created, nil
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Project, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}

	if input.Name != "" {
		current.Name = input.Name
	}
	if input.Status != "" {
		current.Status = input.Status
	}
	current.UpdatedAt = time.Now()

	err = s.store.Update(ctx, current)
	if err != nil {
		return Project{}, err
	}

	s.broadcaster.EntityChanged(realtime.KindProjectUpdated, current)

	return current, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}

	s.broadcaster.EntityChanged(realtime.KindProjectDeleted, DeletedPayload{Id: id})

	return nil
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]Project, error) {
	return s.store.List(ctx, opts)
}
