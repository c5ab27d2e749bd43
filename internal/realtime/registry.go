package realtime

import (
	"sync"

	"go.uber.org/zap"
)

type Registry interface {
	// Join subscribes a session to a topic, creating the topic on first use.
	// Joining an already-joined topic is a no-op.
	Join(topic string, session *Session)

	// Leave removes one subscription. Unknown topics and sessions are no-ops.
	Leave(topic string, sessionId string)

	// LeaveAll removes every subscription held by a session. Called on
	// disconnect.
	LeaveAll(sessionId string)

	// Publish delivers an event to every session joined to its topic.
	// Best-effort and non-blocking; a topic with no subscribers drops the
	// event silently.
	Publish(event Event)
}

type InMemoryRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	sessions        map[string]*Session
	membersByTopic  map[string]map[string]struct{}
	topicsBySession map[string]map[string]struct{}
}

func NewInMemoryRegistry(
	logger *zap.Logger,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:          logger,
		sessions:        make(map[string]*Session),
		membersByTopic:  make(map[string]map[string]struct{}),
		topicsBySession: make(map[string]map[string]struct{}),
	}
}

func (r *InMemoryRegistry) Join(topic string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.membersByTopic[topic]; !ok {
		r.membersByTopic[topic] = make(map[string]struct{})
	}

	if _, ok := r.membersByTopic[topic][session.Id]; ok {
		return
	}

	r.membersByTopic[topic][session.Id] = struct{}{}
	r.sessions[session.Id] = session

	if _, ok := r.topicsBySession[session.Id]; !ok {
		r.topicsBySession[session.Id] = make(map[string]struct{})
	}

	r.topicsBySession[session.Id][topic] = struct{}{}
}

func (r *InMemoryRegistry) Leave(topic string, sessionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionTopics, ok := r.topicsBySession[sessionId]
	if !ok {
		return
	}

	delete(sessionTopics, topic)
	if len(sessionTopics) == 0 {
		delete(r.topicsBySession, sessionId)
		delete(r.sessions, sessionId)
	}

	topicMembers, ok := r.membersByTopic[topic]
	if !ok {
		return
	}

	delete(topicMembers, sessionId)
	if len(topicMembers) == 0 {
		delete(r.membersByTopic, topic)
	}
}

func (r *InMemoryRegistry) LeaveAll(sessionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveAllLocked(sessionId)
}

// IMPORTANT: It must be called only when the write lock is already held.
func (r *InMemoryRegistry) leaveAllLocked(sessionId string) {
	sessionTopics, ok := r.topicsBySession[sessionId]
	if !ok {
		return
	}

	for topic := range sessionTopics {
		topicMembers, ok := r.membersByTopic[topic]
		if !ok {
			continue
		}

		delete(topicMembers, sessionId)
		if len(topicMembers) == 0 {
			delete(r.membersByTopic, topic)
		}
	}

	delete(r.topicsBySession, sessionId)
	delete(r.sessions, sessionId)
}

func (r *InMemoryRegistry) Publish(event Event) {
	r.mu.RLock()

	memberIds, ok := r.membersByTopic[event.Topic]
	if !ok {
		r.mu.RUnlock()

		return
	}

	members := make([]*Session, 0, len(memberIds))
	for sessionId := range memberIds {
		if session, ok := r.sessions[sessionId]; ok {
			members = append(members, session)
		}
	}

	var staleSessions []*Session

	for _, session := range members {
		select {
		case session.Send <- event:
		default:
			r.logger.Warn("session send queue is full, dropping session",
				zap.String("sessionId", session.Id),
				zap.String("topic", event.Topic))

			staleSessions = append(staleSessions, session)
		}
	}

	r.mu.RUnlock()

	if len(staleSessions) == 0 {
		return
	}

	r.mu.Lock()

	for _, session := range staleSessions {
		r.leaveAllLocked(session.Id)
		session.Close()
	}

	r.mu.Unlock()
}

// TopicsOf reports the topics a session is currently joined to. Test helper.
func (r *InMemoryRegistry) TopicsOf(sessionId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topicsBySession[sessionId]))
	for topic := range r.topicsBySession[sessionId] {
		topics = append(topics, topic)
	}

	return topics
}
