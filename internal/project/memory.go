package project

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goevery/tracker/internal/ierr"
)

type MemoryStore struct {
	mu   sync.Mutex
	byId map[string]Project
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byId: make(map[string]Project),
	}
}

func (s *MemoryStore) Setup(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, project Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byId[project.Id] = project

	return nil
}

func (s *MemoryStore) Update(ctx context.Context, project Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byId[project.Id]; !ok {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("project not found"))
	}

	s.byId[project.Id] = project

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byId[id]; !ok {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("project not found"))
	}

	delete(s.byId, id)

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.byId[id]
	if !ok {
		return Project{}, ierr.New(ierr.ErrorCodeNotFound, errors.New("project not found"))
	}

	return project, nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects := make([]Project, 0, len(s.byId))
	for _, p := range s.byId {
		projects = append(projects, p)
	}

	sort.Slice(projects, func(i, j int) bool {
		if projects[i].UpdatedAt.Equal(projects[j].UpdatedAt) {
			return projects[i].Id > projects[j].Id
		}
		return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
	})

	if opts.Offset >= len(projects) {
		return []Project{}, nil
	}
	projects = projects[opts.Offset:]

	if opts.Limit > 0 && opts.Limit < len(projects) {
		projects = projects[:opts.Limit]
	}

	return projects, nil
}
