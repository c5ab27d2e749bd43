package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPageSize    = 20
	defaultResyncGap   = 5 * time.Second
	snapshotMaxEntries = 50
)

// NotificationAPI is the REST surface the store pulls from. *API implements
// it; tests substitute fakes.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, limit int, offset int, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
	DeleteRead(ctx context.Context) error
}

type NotificationStoreOptions struct {
	// PageSize is the fetch window for Initialize and LoadMore. Defaults to 20.
	PageSize int
	// ResyncGap is the disconnection length beyond which a reconnect
	// triggers a full refetch, since missed events are never redelivered.
	// Defaults to 5s.
	ResyncGap time.Duration
	// Cache, when set, persists the newest entries across restarts under
	// CacheKey (stale-while-revalidate).
	Cache    *DiskCache
	CacheKey string
}

func (o NotificationStoreOptions) withDefaults() NotificationStoreOptions {
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.ResyncGap <= 0 {
		o.ResyncGap = defaultResyncGap
	}
	if o.CacheKey == "" {
		o.CacheKey = "notifications"
	}
	return o
}

// NotificationStore merges three input feeds into one consistent local
// view: the initial REST snapshot, paginated fetch-more results, and pushed
// events. Merging is idempotent and converges to the same state regardless
// of arrival order; the unread count is always derived from cache contents,
// never tracked independently.
type NotificationStore struct {
	logger *zap.Logger
	api    NotificationAPI
	opts   NotificationStoreOptions

	mu             sync.Mutex
	entries        []Notification
	deleted        map[string]struct{}
	pushed         map[string]struct{}
	generation     uint64
	fetched        int
	hasMore        bool
	lastErr        error
	loadedFromDisk bool
}

func NewNotificationStore(logger *zap.Logger, api NotificationAPI, opts NotificationStoreOptions) *NotificationStore {
	return &NotificationStore{
		logger:  logger,
		api:     api,
		opts:    opts.withDefaults(),
		deleted: make(map[string]struct{}),
		pushed:  make(map[string]struct{}),
	}
}

// Bind attaches the store to a transport: pushed notifications land in the
// cache, and a reconnect after a gap longer than ResyncGap triggers a full
// refetch, since the broadcaster has no replay.
func (s *NotificationStore) Bind(transport *Transport) {
	transport.On(KindNotificationNew, func(event Event) {
		var created Notification
		if err := json.Unmarshal(event.Payload, &created); err != nil {
			s.logger.Warn("failed to decode pushed notification", zap.Error(err))
			return
		}

		s.ApplyCreated(created)
	})

	transport.OnStatus(func(status Status) {
		if status.Connected && status.Gap > s.opts.ResyncGap {
			if err := s.Initialize(context.Background()); err != nil {
				s.logger.Warn("refetch after reconnect failed", zap.Error(err))
			}
		}
	})
}

// Initialize loads the disk snapshot once (stale-while-revalidate), bumps
// the generation so in-flight LoadMore responses are discarded, and
// refetches the first page. On fetch failure the previous cache stays
// visible and the error is recorded; a transient network failure never
// empties the view. Tombstones are scoped to the generation: the refetch
// restores server state, so a delete whose REST call failed self-heals
// here instead of suppressing the entry forever.
func (s *NotificationStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.pushed = make(map[string]struct{})
	s.deleted = make(map[string]struct{})

	if !s.loadedFromDisk {
		s.loadedFromDisk = true
		if snapshot, ok := s.loadSnapshotLocked(); ok && len(s.entries) == 0 {
			s.entries = snapshot
		}
	}

	limit := s.opts.PageSize
	s.mu.Unlock()

	page, err := s.api.ListNotifications(ctx, limit, 0, false)

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
	s.persistLocked()

	return nil
}

// mergeSnapshotLocked rebuilds the cache from a fresh first page, keeping
// creations pushed since the fetch started at the head. Entries present in
// both take the fetched server state (last write wins).
func (s *NotificationStore) mergeSnapshotLocked(page []Notification) []Notification {
	inPage := make(map[string]struct{}, len(page))
	for _, n := range page {
		inPage[n.Id] = struct{}{}
	}

	merged := make([]Notification, 0, len(page)+len(s.pushed))

	for _, existing := range s.entries {
		_, pushedMeanwhile := s.pushed[existing.Id]
		_, replacedByPage := inPage[existing.Id]
		_, gone := s.deleted[existing.Id]

		if pushedMeanwhile && !replacedByPage && !gone {
			merged = append(merged, existing)
		}
	}

	for _, n := range page {
		if _, gone := s.deleted[n.Id]; gone {
			continue
		}
		merged = append(merged, n)
	}

	return merged
}

// LoadMore appends the next REST page. Ids that arrived as pushed creations
// while the request was in flight are skipped, never re-inserted. A stale
// response (generation bumped by Initialize meanwhile) is discarded.
func (s *NotificationStore) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	generation := s.generation
	offset := s.fetched
	limit := s.opts.PageSize
	s.mu.Unlock()

	page, err := s.api.ListNotifications(ctx, limit, offset, false)

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

	for _, n := range page {
		if _, gone := s.deleted[n.Id]; gone {
			continue
		}
		if i := s.indexLocked(n.Id); i >= 0 {
			s.entries[i] = n
			continue
		}
		s.entries = append(s.entries, n)
	}

	s.persistLocked()

	return nil
}

// ApplyCreated inserts a pushed notification at the head. Applying the same
// event twice replaces the entry in place, leaving the cache identical.
func (s *NotificationStore) ApplyCreated(created Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.deleted[created.Id]; gone {
		return
	}

	if i := s.indexLocked(created.Id); i >= 0 {
		s.entries[i] = created
	} else {
		s.entries = append([]Notification{created}, s.entries...)
		s.pushed[created.Id] = struct{}{}
	}

	s.persistLocked()
}

// ApplyUpdated replaces a cached entry in place; updates never reorder.
// Updates for ids outside the cached window, or for ids already deleted
// locally, are ignored (deletion wins).
func (s *NotificationStore) ApplyUpdated(updated Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.deleted[updated.Id]; gone {
		return
	}

	if i := s.indexLocked(updated.Id); i >= 0 {
		s.entries[i] = updated
		s.persistLocked()
	}
}

func (s *NotificationStore) ApplyDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted[id] = struct{}{}
	s.removeLocked(id)
	s.persistLocked()
}

// MarkRead flips the flag locally and fires the REST call. On REST failure
// the local flag is not rolled back: a stale "read" marker is low-risk and
// self-heals on the next full refetch.
func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.entries[i].IsRead = true
		s.persistLocked()
	}
	s.mu.Unlock()

	err := s.api.MarkRead(ctx, id)
	if err != nil {
		s.setErr(err)
		return err
	}

	return nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	for i := range s.entries {
		s.entries[i].IsRead = true
	}
	s.persistLocked()
	s.mu.Unlock()

	err := s.api.MarkAllRead(ctx)
	if err != nil {
		s.setErr(err)
		return err
	}

	return nil
}

// Delete removes the entry locally (tombstoned, so a concurrently-queued
// update for the same id cannot resurrect it) and fires the REST call with
// the same no-rollback policy as MarkRead.
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deleted[id] = struct{}{}
	s.removeLocked(id)
	s.persistLocked()
	s.mu.Unlock()

	err := s.api.DeleteNotification(ctx, id)
	if err != nil {
		s.setErr(err)
		return err
	}

	return nil
}

func (s *NotificationStore) DeleteAllRead(ctx context.Context) error {
	s.mu.Lock()
	kept := s.entries[:0]
	for _, n := range s.entries {
		if n.IsRead {
			s.deleted[n.Id] = struct{}{}
			continue
		}
		kept = append(kept, n)
	}
	s.entries = kept
	s.persistLocked()
	s.mu.Unlock()

	err := s.api.DeleteRead(ctx)
	if err != nil {
		s.setErr(err)
		return err
	}

	return nil
}

// UnreadCount is recomputed from cache contents on every call. After a full
// refetch it matches the server's authoritative count.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.entries {
		if !n.IsRead {
			count++
		}
	}

	return count
}

// Entries returns a copy of the cached list, most recent first.
func (s *NotificationStore) Entries() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Notification, len(s.entries))
	copy(entries, s.entries)

	return entries
}

// Err reports the last recoverable failure (fetch or fire-and-forget
// mutation). Cleared by the next successful fetch.
func (s *NotificationStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

func (s *NotificationStore) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hasMore
}

func (s *NotificationStore) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Warn("notification mutation not confirmed by server", zap.Error(err))
}

func (s *NotificationStore) indexLocked(id string) int {
	for i, n := range s.entries {
		if n.Id == id {
			return i
		}
	}

	return -1
}

func (s *NotificationStore) removeLocked(id string) {
	if i := s.indexLocked(id); i >= 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
}

func (s *NotificationStore) persistLocked() {
	if s.opts.Cache == nil {
		return
	}

	snapshot := s.entries
	if len(snapshot) > snapshotMaxEntries {
		snapshot = snapshot[:snapshotMaxEntries]
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn("failed to encode cache snapshot", zap.Error(err))
		return
	}

	if err := s.opts.Cache.Save(s.opts.CacheKey, body); err != nil {
		s.logger.Warn("failed to persist cache snapshot", zap.Error(err))
	}
}

func (s *NotificationStore) loadSnapshotLocked() ([]Notification, bool) {
	if s.opts.Cache == nil {
		return nil, false
	}

	body, ok, err := s.opts.Cache.Load(s.opts.CacheKey)
	if err != nil || !ok {
		return nil, false
	}

	var snapshot []Notification
	if err := json.Unmarshal(body, &snapshot); err != nil {
		// Corrupt snapshot is a cache miss.
		return nil, false
	}

	return snapshot, true
}
