package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serverRequest struct {
	Id     string `json:"id"`
	Method string `json:"method"`
	Params struct {
		Topic string `json:"topic"`
		Token string `json:"token"`
	} `json:"params"`
}

func websocketTestURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func okReply(id string) map[string]any {
	return map[string]any{"requestId": id, "result": map[string]any{}}
}

func TestTransportReplaysIntentsOnReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var (
		mu        sync.Mutex
		connCount int
		subs      = make(map[int][]string)
	)
	replayed := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		index := connCount
		connCount++
		mu.Unlock()

		for {
			var req serverRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			if req.Method == "subscribe" {
				mu.Lock()
				subs[index] = append(subs[index], req.Params.Topic)
				received := len(subs[index])
				mu.Unlock()

				if err := conn.WriteJSON(okReply(req.Id)); err != nil {
					return
				}

				if index == 1 && received == 2 {
					close(replayed)
				}
				continue
			}

			if err := conn.WriteJSON(okReply(req.Id)); err != nil {
				return
			}

			// Drop the first connection once the client has settled its
			// subscriptions, forcing a reconnect.
			if index == 0 && req.Method == "unsubscribe" {
				return
			}
		}
	}))
	defer srv.Close()

	transport := NewTransport(zap.NewNop(), websocketTestURL(srv), "", TransportOptions{
		InitialBackoff: 5 * time.Millisecond,
	})
	defer transport.Close()

	ctx := context.Background()
	require.NoError(t, transport.Connect(ctx))
	require.NoError(t, transport.Subscribe(ctx, "projects"))
	require.NoError(t, transport.Subscribe(ctx, "user:user-1"))
	require.NoError(t, transport.Subscribe(ctx, "import:job-9"))
	require.NoError(t, transport.Unsubscribe(ctx, "import:job-9"))

	select {
	case <-replayed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the reconnect to replay subscriptions")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"projects", "user:user-1", "import:job-9"}, subs[0])
	assert.ElementsMatch(t, []string{"projects", "user:user-1"}, subs[1])
}

func TestTransportRecordsIntentsWhileDisconnected(t *testing.T) {
	transport := NewTransport(zap.NewNop(), "ws://unused", "", TransportOptions{})

	// No connection yet: subscribing only records the intent.
	require.NoError(t, transport.Subscribe(context.Background(), "projects"))
	require.NoError(t, transport.Subscribe(context.Background(), "user:user-1"))
	require.NoError(t, transport.Unsubscribe(context.Background(), "user:user-1"))

	assert.ElementsMatch(t, []string{"projects"}, transport.intentTopics())
}

func TestTransportDispatchesPushedEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		push := map[string]any{
			"method": "event",
			"params": map[string]any{
				"id":      "evt-1",
				"seq":     1,
				"topic":   "user:user-1",
				"kind":    KindNotificationNew,
				"payload": map[string]any{"id": "n-1", "title": "hi"},
			},
		}
		if err := conn.WriteJSON(push); err != nil {
			return
		}

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	transport := NewTransport(zap.NewNop(), websocketTestURL(srv), "", TransportOptions{})
	defer transport.Close()

	received := make(chan Event, 1)
	transport.On(KindNotificationNew, func(event Event) {
		received <- event
	})

	require.NoError(t, transport.Connect(context.Background()))

	select {
	case event := <-received:
		assert.Equal(t, "user:user-1", event.Topic)
		assert.JSONEq(t, `{"id":"n-1","title":"hi"}`, string(event.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the pushed event")
	}
}

func TestTransportFailedHandshakeStaysWithinRetryBudget(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var (
		mu        sync.Mutex
		connCount int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		index := connCount
		connCount++
		mu.Unlock()

		for {
			var req serverRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			// Every connection after the first rejects auth, so each
			// reconnect attempt fails during its handshake.
			if req.Method == "auth" && index > 0 {
				reply := map[string]any{
					"requestId": req.Id,
					"error":     map[string]any{"code": "Unauthenticated", "message": "token revoked"},
				}
				conn.WriteJSON(reply)
				return
			}

			if err := conn.WriteJSON(okReply(req.Id)); err != nil {
				return
			}

			if index == 0 && req.Method == "subscribe" {
				return
			}
		}
	}))
	defer srv.Close()

	transport := NewTransport(zap.NewNop(), websocketTestURL(srv), "some-token", TransportOptions{
		InitialBackoff: time.Millisecond,
		MaxAttempts:    2,
	})
	defer transport.Close()

	gaveUp := make(chan struct{}, 1)
	transport.OnStatus(func(status Status) {
		if !status.Connected && status.Err != nil {
			select {
			case gaveUp <- struct{}{}:
			default:
			}
		}
	})

	require.NoError(t, transport.Connect(context.Background()))

	// The server drops the established connection on this subscribe; the
	// reply may or may not make it back first.
	_ = transport.Subscribe(context.Background(), "projects")

	select {
	case <-gaveUp:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the transport to give up")
	}

	// Let any runaway retry loops show themselves before counting.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, connCount, 3, "one initial connection plus MaxAttempts reconnects")
}

func TestTransportGivesUpAfterRetryBudget(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var (
		mu    sync.Mutex
		conns []*websocket.Conn
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	transport := NewTransport(zap.NewNop(), websocketTestURL(srv), "", TransportOptions{
		InitialBackoff: time.Millisecond,
		MaxAttempts:    2,
	})
	defer transport.Close()

	statuses := make(chan Status, 16)
	transport.OnStatus(func(status Status) {
		statuses <- status
	})

	require.NoError(t, transport.Connect(context.Background()))

	// The server shuts down entirely, so every reconnect attempt fails.
	// httptest.Server forgets hijacked (upgraded) connections, so the
	// websocket conns have to be closed directly.
	srv.Close()
	mu.Lock()
	for _, conn := range conns {
		conn.Close()
	}
	mu.Unlock()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case status := <-statuses:
			if !status.Connected && status.Err != nil {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the transport to give up")
		}
	}
}

func TestTransportSurfacesServerErrors(t *testing.T) {
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req serverRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			reply := map[string]any{
				"requestId": req.Id,
				"error":     map[string]any{"code": "PERMISSION_DENIED", "message": "not your topic"},
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	transport := NewTransport(zap.NewNop(), websocketTestURL(srv), "", TransportOptions{})
	defer transport.Close()

	require.NoError(t, transport.Connect(context.Background()))

	err := transport.Subscribe(context.Background(), "user:someone-else")
	require.Error(t, err)

	var wireErr *WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, "PERMISSION_DENIED", wireErr.Code)
}
