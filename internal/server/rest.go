package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goevery/tracker/internal/auth"
	"github.com/goevery/tracker/internal/handler"
	"github.com/goevery/tracker/internal/ierr"
	"github.com/goevery/tracker/internal/notification"
	"github.com/goevery/tracker/internal/project"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const defaultPageSize = 20

type RESTServer struct {
	logger *zap.Logger

	authenticator  *auth.Authenticator
	notifications  *notification.Service
	projects       *project.Service
	importer       *project.Importer
	publishHandler handler.PublishHandlerInterface
}

func NewRESTServer(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
	notifications *notification.Service,
	projects *project.Service,
	importer *project.Importer,
	publishHandler handler.PublishHandlerInterface,
) *RESTServer {
	return &RESTServer{
		logger,
		authenticator,
		notifications,
		projects,
		importer,
		publishHandler,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	// read-all before {id}: mux matches in registration order.
	router.HandleFunc("/notifications/read-all", s.requireUser(s.handleMarkAllRead)).Methods("PUT")
	router.HandleFunc("/notifications/read-all", s.requireUser(s.handleDeleteRead)).Methods("DELETE")
	router.HandleFunc("/notifications/unread-count", s.requireUser(s.handleUnreadCount)).Methods("GET")
	router.HandleFunc("/notifications/{id}/read", s.requireUser(s.handleMarkRead)).Methods("PUT")
	router.HandleFunc("/notifications/{id}", s.requireUser(s.handleDeleteNotification)).Methods("DELETE")
	router.HandleFunc("/notifications", s.requireUser(s.handleListNotifications)).Methods("GET")

	router.HandleFunc("/projects", s.requireUser(s.handleListProjects)).Methods("GET")

	router.HandleFunc("/users/{id}/notifications", s.requireAPIKey(s.handleCreateNotification)).Methods("POST")
	router.HandleFunc("/imports", s.requireAPIKey(s.handleStartImport)).Methods("POST")
	router.HandleFunc("/publish", s.requireAPIKey(s.handlePublish)).Methods("POST")
}

type userHandler func(w http.ResponseWriter, r *http.Request, userId string)

func (s *RESTServer) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing bearer token")))
			return
		}

		authentication, err := s.authenticator.AuthenticateJWT(token)
		if err != nil {
			s.writeError(w, err)
			return
		}

		next(w, r, authentication.Subject)
	}
}

func (s *RESTServer) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authentication, err := s.authenticator.AuthenticateAPIKey(r.Header.Get("X-API-Key"))
		if err != nil {
			s.writeError(w, err)
			return
		}

		next(w, r.WithContext(auth.WithAuthentication(r.Context(), authentication)))
	}
}

func (s *RESTServer) handleListNotifications(w http.ResponseWriter, r *http.Request, userId string) {
	opts := notification.ListOptions{
		Limit:      queryInt(r, "limit", defaultPageSize),
		Offset:     queryInt(r, "offset", 0),
		UnreadOnly: r.URL.Query().Get("unread_only") == "true",
	}

	notifications, err := s.notifications.List(r.Context(), userId, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, notifications)
}

func (s *RESTServer) handleUnreadCount(w http.ResponseWriter, r *http.Request, userId string) {
	count, err := s.notifications.CountUnread(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *RESTServer) handleMarkRead(w http.ResponseWriter, r *http.Request, userId string) {
	id := mux.Vars(r)["id"]

	err := s.notifications.MarkRead(r.Context(), userId, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *RESTServer) handleMarkAllRead(w http.ResponseWriter, r *http.Request, userId string) {
	err := s.notifications.MarkAllRead(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *RESTServer) handleDeleteNotification(w http.ResponseWriter, r *http.Request, userId string) {
	id := mux.Vars(r)["id"]

	err := s.notifications.Delete(r.Context(), userId, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *RESTServer) handleDeleteRead(w http.ResponseWriter, r *http.Request, userId string) {
	deleted, err := s.notifications.DeleteRead(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *RESTServer) handleListProjects(w http.ResponseWriter, r *http.Request, userId string) {
	opts := project.ListOptions{
		Limit:  queryInt(r, "limit", defaultPageSize),
		Offset: queryInt(r, "offset", 0),
	}

	projects, err := s.projects.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, projects)
}

func (s *RESTServer) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["id"]

	var input notification.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return
	}

	created, err := s.notifications.Create(r.Context(), userId, input)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

func (s *RESTServer) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Rows []project.CreateInput `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return
	}

	importId := s.importer.Start(input.Rows)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"importId": importId})
}

func (s *RESTServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var publishRequest handler.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&publishRequest); err != nil {
		s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return
	}

	event, err := s.publishHandler.Handle(r.Context(), publishRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, event)
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	var coded ierr.Error
	if !errors.As(err, &coded) {
		s.logger.Error("error in rest handler", zap.Error(err))
		coded = ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(coded.Code))

	if err := json.NewEncoder(w).Encode(map[string]any{"error": coded}); err != nil {
		s.logger.Error("failed to encode error response", zap.Error(err))
	}
}

func statusOf(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ierr.ErrorCodeNotFound:
		return http.StatusNotFound
	case ierr.ErrorCodeFailedPrecondition:
		return http.StatusConflict
	case ierr.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ierr.ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	case ierr.ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	return token, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}

	return value
}
