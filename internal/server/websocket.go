package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/goevery/tracker/internal/realtime"
	"github.com/goevery/tracker/internal/rpc"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	readLimit     = 4096
	pongTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
	writeTimeout  = 10 * time.Second
	sendQueueSize = 64
)

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	registry realtime.Registry
	router   *Router
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry realtime.Registry,
	router *Router,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		registry,
		router,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", s.handle)
}

func (s *WebSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := realtime.NewSession(gonanoid.Must(), sendQueueSize)
	logger := s.logger.With(zap.String("sessionId", session.Id))

	logger.Info("websocket session established")

	replies := make(chan rpc.Response, sendQueueSize)

	go s.writePump(logger, conn, session, replies)

	s.readLoop(logger, conn, session, replies)

	s.registry.LeaveAll(session.Id)
	session.Close()

	logger.Info("websocket session closed")
}

func (s *WebSocketServer) readLoop(
	logger *zap.Logger,
	conn *websocket.Conn,
	session *realtime.Session,
	replies chan<- rpc.Response,
) {
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	ctx := realtime.WithSession(context.Background(), session)

	for {
		var request rpc.Request
		err := conn.ReadJSON(&request)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", zap.Error(err))
			}

			return
		}

		response := s.router.RouteRequest(ctx, request)
		if response == nil {
			continue
		}

		select {
		case replies <- *response:
		case <-session.Done():
			return
		}
	}
}

func (s *WebSocketServer) writePump(
	logger *zap.Logger,
	conn *websocket.Conn,
	session *realtime.Session,
	replies <-chan rpc.Response,
) {
	ping := time.NewTicker(pingInterval)

	defer func() {
		ping.Stop()
		conn.Close()
	}()

	for {
		select {
		case event := <-session.Send:
			push, err := wrapEvent(event)
			if err != nil {
				logger.Error("failed to encode event", zap.Error(err))
				continue
			}

			if err := s.write(conn, push); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				session.Close()
				return
			}
		case response := <-replies:
			if err := s.write(conn, response); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				session.Close()
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.Close()
				return
			}
		case <-session.Done():
			return
		}
	}
}

func (s *WebSocketServer) write(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return conn.WriteJSON(v)
}

func wrapEvent(event realtime.Event) (rpc.Request, error) {
	rawJson, err := json.Marshal(event)
	if err != nil {
		return rpc.Request{}, err
	}

	params := json.RawMessage(rawJson)

	return rpc.NewPush("event", &params), nil
}
