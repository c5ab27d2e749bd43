package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProjectAPI is the REST surface backing the project list store.
type ProjectAPI interface {
	ListProjects(ctx context.Context, limit int, offset int) ([]Project, error)
}

type ProjectStoreOptions struct {
	PageSize  int
	ResyncGap time.Duration
}

func (o ProjectStoreOptions) withDefaults() ProjectStoreOptions {
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.ResyncGap <= 0 {
		o.ResyncGap = defaultResyncGap
	}
	return o
}

// ProjectStore mirrors the live entity list: fetched pages keep the
// server-defined order, pushed creations go to the head, updates replace in
// place, deletions win over late updates for the same id.
type ProjectStore struct {
	logger *zap.Logger
	api    ProjectAPI
	opts   ProjectStoreOptions

	mu         sync.Mutex
	entries    []Project
	deleted    map[string]struct{}
	pushed     map[string]struct{}
	generation uint64
	fetched    int
	hasMore    bool
	lastErr    error
}

func NewProjectStore(logger *zap.Logger, api ProjectAPI, opts ProjectStoreOptions) *ProjectStore {
	return &ProjectStore{
		logger:  logger,
		api:     api,
		opts:    opts.withDefaults(),
		deleted: make(map[string]struct{}),
		pushed:  make(map[string]struct{}),
	}
}

func (s *ProjectStore) Bind(transport *Transport) {
	transport.On(KindProjectCreated, func(event Event) {
		var created Project
		if err := json.Unmarshal(event.Payload, &created); err != nil {
			s.logger.Warn("failed to decode pushed project", zap.Error(err))
			return
		}

		s.ApplyCreated(created)
	})

	transport.On(KindProjectUpdated, func(event Event) {
		var updated Project
		if err := json.Unmarshal(event.Payload, &updated); err != nil {
			s.logger.Warn("failed to decode pushed project", zap.Error(err))
			return
		}

		s.ApplyUpdated(updated)
	})

	transport.On(KindProjectDeleted, func(event Event) {
		var deleted struct {
			Id string `json:"id"`
		}
		if err := json.Unmarshal(event.Payload, &deleted); err != nil {
			s.logger.Warn("failed to decode pushed deletion", zap.Error(err))
			return
		}

		s.ApplyDeleted(deleted.Id)
	})

	transport.OnStatus(func(status Status) {
		if status.Connected && status.Gap > s.opts.ResyncGap {
			if err := s.Initialize(context.Background()); err != nil {
				s.logger.Warn("refetch after reconnect failed", zap.Error(err))
			}
		}
	})
}

func (s *ProjectStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.pushed = make(map[string]struct{})
	// Tombstones last one generation; the refetch restores server state.
	s.deleted = make(map[string]struct{})
	limit := s.opts.PageSize
	s.mu.Unlock()

	page, err := s.api.ListProjects(ctx, limit, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return nil
	}

	if err != nil {
		s.lastErr = err
		return err
	}

	s.lastErr = nil
	s.entries = s.mergeSnapshotLocked(page)
	s.fetched = len(page)
	s.hasMore = len(page) == limit

	return nil
}

func (s *ProjectStore) mergeSnapshotLocked(page []Project) []Project {
	inPage := make(map[string]struct{}, len(page))
	for _, p := range page {
		inPage[p.Id] = struct{}{}
	}

	merged := make([]Project, 0, len(page)+len(s.pushed))

	for _, existing := range s.entries {
		_, pushedMeanwhile := s.pushed[existing.Id]
		_, replacedByPage := inPage[existing.Id]
		_, gone := s.deleted[existing.Id]

		if pushedMeanwhile && !replacedByPage && !gone {
			merged = append(merged, existing)
		}
	}

	for _, p := range page {
		if _, gone := s.deleted[p.Id]; gone {
			continue
		}
		merged = append(merged, p)
	}

	return merged
}

func (s *ProjectStore) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	generation := s.generation
	offset := s.fetched
	limit := s.opts.PageSize
	s.mu.Unlock()

	page, err := s.api.ListProjects(ctx, limit, offset)

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return nil
	}

	if err != nil {
		s.lastErr = err
		return err
	}

	s.lastErr = nil
	s.fetched += len(page)
	s.hasMore = len(page) == limit

	for _, p := range page {
		if _, gone := s.deleted[p.Id]; gone {
			continue
		}
		if i := s.indexLocked(p.Id); i >= 0 {
			s.entries[i] = p
			continue
		}
		s.entries = append(s.entries, p)
	}

	return nil
}

func (s *ProjectStore) ApplyCreated(created Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.deleted[created.Id]; gone {
		return
	}

	if i := s.indexLocked(created.Id); i >= 0 {
		s.entries[i] = created
	} else {
		s.entries = append([]Project{created}, s.entries...)
		s.pushed[created.Id] = struct{}{}
	}
}

func (s *ProjectStore) ApplyUpdated(updated Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.deleted[updated.Id]; gone {
		return
	}

	if i := s.indexLocked(updated.Id); i >= 0 {
		s.entries[i] = updated
	}
}

func (s *ProjectStore) ApplyDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted[id] = struct{}{}

	if i := s.indexLocked(id); i >= 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
}

func (s *ProjectStore) Entries() []Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Project, len(s.entries))
	copy(entries, s.entries)

	return entries
}

func (s *ProjectStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

func (s *ProjectStore) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hasMore
}

func (s *ProjectStore) indexLocked(id string) int {
	for i, p := range s.entries {
		if p.Id == id {
			return i
		}
	}

	return -1
}
