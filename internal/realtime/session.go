package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/goevery/tracker/internal/auth"
	"github.com/goevery/tracker/internal/ierr"
)

// Session is one live client connection. It is created on physical connect,
// torn down on disconnect, and never persisted. The Send queue is bounded;
// the registry kills sessions that stop draining it.
type Session struct {
	Id   string
	Send chan Event

	done      chan struct{}
	closeOnce sync.Once

	mu             sync.RWMutex
	authentication *auth.Authentication
}

func NewSession(id string, sendQueueSize int) *Session {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}

	return &Session{
		Id:   id,
		Send: make(chan Event, sendQueueSize),
		done: make(chan struct{}),
	}
}

// SetAuthentication moves the session from connecting to authenticated.
// A session authenticates at most once.
func (s *Session) SetAuthentication(a *auth.Authentication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authentication != nil {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("session is already authenticated"))
	}

	s.authentication = a

	return nil
}

func (s *Session) Authentication() *auth.Authentication {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authentication
}

func (s *Session) UserId() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.authentication == nil {
		return ""
	}

	return s.authentication.Subject
}

// CanSubscribe enforces topic entitlement server-side: the public entity
// list is open to everyone, import progress requires authentication, and a
// private topic is only ever granted to the session whose validated subject
// owns it.
func (s *Session) CanSubscribe(topic string) error {
	if topic == TopicProjects {
		return nil
	}

	authentication := s.Authentication()
	if authentication == nil {
		return ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("authentication required"))
	}

	if owner, ok := TopicOwner(topic); ok {
		if owner != authentication.Subject && !authentication.IsAdmin {
			return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("not authorized for this topic"))
		}
	}

	return nil
}

// Close is idempotent. It signals the write pump to stop; the Send channel
// itself is never closed, so concurrent publishers cannot panic.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionKey).(*Session)

	return session, ok
}
