package notification

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goevery/tracker/internal/ierr"
)

// MemoryStore backs tests and the MONGODB_URI-less dev mode.
type MemoryStore struct {
	mu      sync.Mutex
	byId    map[string]Notification
	ordered []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byId: make(map[string]Notification),
	}
}

func (s *MemoryStore) Setup(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, notification Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byId[notification.Id]; !ok {
		s.ordered = append(s.ordered, notification.Id)
		// Ids are ULIDs, descending id order is most-recent-first.
		sort.Sort(sort.Reverse(sort.StringSlice(s.ordered)))
	}

	s.byId[notification.Id] = notification

	return nil
}

func (s *MemoryStore) List(ctx context.Context, userId string, opts ListOptions) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []Notification{}
	for _, id := range s.ordered {
		n := s.byId[id]
		if n.UserId != userId {
			continue
		}
		if opts.UnreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, n)
	}

	if opts.Offset >= len(matched) {
		return []Notification{}, nil
	}
	matched = matched[opts.Offset:]

	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}

	return matched, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, userId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, n := range s.byId {
		if n.UserId == userId && !n.IsRead {
			count++
		}
	}

	return count, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, userId string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byId[id]
	if !ok || n.UserId != userId {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("notification not found"))
	}

	n.IsRead = true
	s.byId[id] = n

	return nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, userId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range s.byId {
		if n.UserId == userId && !n.IsRead {
			n.IsRead = true
			s.byId[id] = n
		}
	}

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userId string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byId[id]
	if !ok || n.UserId != userId {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("notification not found"))
	}

	s.deleteLocked(id)

	return nil
}

func (s *MemoryStore) DeleteRead(ctx context.Context, userId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.byId {
		if n.UserId == userId && n.IsRead {
			s.deleteLocked(id)
			deleted++
		}
	}

	return deleted, nil
}

func (s *MemoryStore) deleteLocked(id string) {
	delete(s.byId, id)
	for i, orderedId := range s.ordered {
		if orderedId == id {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}
}
