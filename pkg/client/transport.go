package client

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const callTimeout = 10 * time.Second

var ErrTransportClosed = errors.New("transport is closed")

// Handler receives pushed events. Handlers for one transport run
// sequentially in arrival order, so store mutations need no extra locking
// against each other.
type Handler func(Event)

// Status reports a connectivity transition. Gap is how long the transport
// was disconnected before this reconnect; Err is set once the retry budget
// is exhausted and the transport gives up.
type Status struct {
	Connected bool
	Gap       time.Duration
	Err       error
}

type TransportOptions struct {
	// InitialBackoff is the first reconnect delay. Defaults to 1s.
	InitialBackoff time.Duration
	// MaxAttempts bounds reconnect attempts per outage. Defaults to 5.
	MaxAttempts int
}

func (o TransportOptions) withDefaults() TransportOptions {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

// Transport owns the single physical connection of a client process.
// Subscriptions are a client-held intent list, replayed on every successful
// (re)connect; the server keeps no membership across connections.
type Transport struct {
	logger *zap.Logger
	url    string
	token  string
	opts   TransportOptions
	dialer *websocket.Dialer

	nextId atomic.Uint64

	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	ready          bool
	intents        map[string]struct{}
	handlers       map[string][]Handler
	statusFns      []func(Status)
	pending        map[string]chan wireFrame
	closed         bool
	disconnectedAt time.Time
}

func NewTransport(logger *zap.Logger, url string, token string, opts TransportOptions) *Transport {
	return &Transport{
		logger:   logger,
		url:      url,
		token:    token,
		opts:     opts.withDefaults(),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		intents:  make(map[string]struct{}),
		handlers: make(map[string][]Handler),
		pending:  make(map[string]chan wireFrame),
	}
}

// On registers a handler for an event kind. Not safe to call after Connect.
func (t *Transport) On(kind string, handler Handler) {
	t.handlers[kind] = append(t.handlers[kind], handler)
}

// OnStatus registers a connectivity callback. Not safe to call after Connect.
func (t *Transport) OnStatus(fn func(Status)) {
	t.statusFns = append(t.statusFns, fn)
}

// Connect dials, authenticates, and replays the subscription intents.
func (t *Transport) Connect(ctx context.Context) error {
	err := t.connectOnce(ctx)
	if err != nil {
		return err
	}

	t.notify(Status{Connected: true})

	return nil
}

// Subscribe records the topic in the intent list and, when connected,
// issues the join immediately. Recording while disconnected is not an
// error; the intent is replayed on reconnect.
func (t *Transport) Subscribe(ctx context.Context, topic string) error {
	t.mu.Lock()
	t.intents[topic] = struct{}{}
	connected := t.conn != nil
	t.mu.Unlock()

	if !connected {
		return nil
	}

	_, err := t.call(ctx, "subscribe", map[string]string{"topic": topic})

	return err
}

func (t *Transport) Unsubscribe(ctx context.Context, topic string) error {
	t.mu.Lock()
	delete(t.intents, topic)
	connected := t.conn != nil
	t.mu.Unlock()

	if !connected {
		return nil
	}

	_, err := t.call(ctx, "unsubscribe", map[string]string{"topic": topic})

	return err
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()

	return conn.Close()
}

// connectOnce dials and runs the handshake (auth + intent replay). The
// connection is not marked ready until the handshake succeeds, so a failure
// here never spawns its own reconnect loop: the caller owns the retry.
func (t *Transport) connectOnce(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrTransportClosed
	}
	t.conn = conn
	t.ready = false
	t.mu.Unlock()

	go t.readLoop(conn)

	if t.token != "" {
		_, err = t.call(ctx, "auth", map[string]string{"token": t.token})
		if err != nil {
			t.dropConn(conn)
			return err
		}
	}

	for _, topic := range t.intentTopics() {
		_, err = t.call(ctx, "subscribe", map[string]string{"topic": topic})
		if err != nil {
			t.dropConn(conn)
			return err
		}
	}

	t.mu.Lock()
	handshook := t.conn == conn
	t.ready = handshook
	t.mu.Unlock()

	if !handshook {
		return errors.New("connection lost during handshake")
	}

	return nil
}

// dropConn discards a connection whose handshake failed, before readLoop's
// disconnect handling can treat it as an established connection.
func (t *Transport) dropConn(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		t.failPendingLocked()
	}
	t.mu.Unlock()

	conn.Close()
}

func (t *Transport) intentTopics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	topics := make([]string, 0, len(t.intents))
	for topic := range t.intents {
		topics = append(topics, topic)
	}

	return topics
}

func (t *Transport) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := strconv.FormatUint(t.nextId.Add(1), 10)
	reply := make(chan wireFrame, 1)

	t.mu.Lock()
	if t.conn == nil {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	conn := t.conn
	t.pending[id] = reply
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	err := t.write(conn, wireRequest{Id: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	timeout := time.NewTimer(callTimeout)
	defer timeout.Stop()

	select {
	case frame, ok := <-reply:
		if !ok {
			return nil, ErrTransportClosed
		}
		if frame.Error != nil {
			return nil, frame.Error
		}
		return frame.Result, nil
	case <-timeout.C:
		return nil, errors.New("rpc call timed out: " + method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) write(conn *websocket.Conn, v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(callTimeout))

	return conn.WriteJSON(v)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		var frame wireFrame
		err := conn.ReadJSON(&frame)
		if err != nil {
			t.handleDisconnect(conn, err)
			return
		}

		switch {
		case frame.Method == "event":
			t.dispatchEvent(frame.Params)
		case frame.RequestId != "":
			t.mu.Lock()
			reply, ok := t.pending[frame.RequestId]
			t.mu.Unlock()

			if ok {
				reply <- frame
			}
		default:
			t.logger.Warn("unexpected frame from server", zap.String("method", frame.Method))
		}
	}
}

func (t *Transport) dispatchEvent(params json.RawMessage) {
	var event Event
	if err := json.Unmarshal(params, &event); err != nil {
		t.logger.Warn("failed to decode pushed event", zap.Error(err))
		return
	}

	for _, handler := range t.handlers[event.Kind] {
		handler(event)
	}
}

func (t *Transport) handleDisconnect(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.closed || t.conn != conn {
		t.mu.Unlock()
		return
	}
	wasReady := t.ready
	t.conn = nil
	t.ready = false
	t.disconnectedAt = time.Now()
	t.failPendingLocked()
	t.mu.Unlock()

	conn.Close()

	// A connection that never finished its handshake belongs to a
	// connectOnce still on some caller's stack; reconnecting here too would
	// multiply retry loops past the attempt bound.
	if !wasReady {
		return
	}

	t.logger.Warn("connection lost, reconnecting", zap.Error(cause))
	t.notify(Status{Connected: false})

	t.reconnect()
}

// IMPORTANT: It must be called only when the mutex is already held.
func (t *Transport) failPendingLocked() {
	for id, reply := range t.pending {
		close(reply)
		delete(t.pending, id)
	}
}

func (t *Transport) reconnect() {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.opts.InitialBackoff
	policy.RandomizationFactor = 1 // full jitter
	policy.MaxElapsedTime = 0

	bounded := backoff.WithMaxRetries(policy, uint64(t.opts.MaxAttempts-1))

	err := backoff.Retry(func() error {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return backoff.Permanent(ErrTransportClosed)
		}
		t.mu.Unlock()

		return t.connectOnce(context.Background())
	}, bounded)

	if err != nil {
		t.logger.Error("reconnect attempts exhausted", zap.Error(err))
		t.notify(Status{Connected: false, Err: err})
		return
	}

	t.mu.Lock()
	gap := time.Since(t.disconnectedAt)
	t.mu.Unlock()

	t.logger.Info("reconnected", zap.Duration("gap", gap))
	t.notify(Status{Connected: true, Gap: gap})
}

func (t *Transport) notify(status Status) {
	for _, fn := range t.statusFns {
		fn(status)
	}
}
