package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goevery/tracker/internal/auth"
	"github.com/goevery/tracker/internal/handler"
	"github.com/goevery/tracker/internal/notification"
	"github.com/goevery/tracker/internal/project"
	"github.com/goevery/tracker/internal/realtime"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRESTStack(t *testing.T) (*httptest.Server, *notification.Service) {
	t.Helper()

	logger := zap.NewNop()
	registry := realtime.NewInMemoryRegistry(logger)
	broadcaster := realtime.NewBroadcaster(logger, registry)
	authenticator := auth.NewAuthenticator("test-secret", []string{"test-api-key"})

	notificationService := notification.NewService(logger, notification.NewMemoryStore(), broadcaster)
	projectService := project.NewService(logger, project.NewMemoryStore(), broadcaster)
	importer := project.NewImporter(logger, projectService)
	publishHandler := handler.NewPublishHandler(handler.NewTopicValidator(), broadcaster)

	restServer := NewRESTServer(logger, authenticator, notificationService, projectService, importer, publishHandler)

	router := mux.NewRouter()
	restServer.Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, notificationService
}

func doRequest(t *testing.T, method string, url string, token string, body []byte) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestRESTServerNotifications(t *testing.T) {
	server, notifications := newRESTStack(t)
	ctx := context.Background()

	token := signTestToken(t, "user-7", nil)
	foreignToken := signTestToken(t, "user-8", nil)

	first, err := notifications.Create(ctx, "user-7", notification.CreateInput{
		Type: "project.assigned", Title: "Assigned", Message: "You were assigned",
	})
	require.NoError(t, err)

	_, err = notifications.Create(ctx, "user-7", notification.CreateInput{
		Type: "import.finished", Title: "Import done", Message: "All rows imported",
	})
	require.NoError(t, err)

	t.Run("requires bearer token", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/notifications", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("lists own notifications most recent first", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/notifications?limit=10&offset=0", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listed []notification.Notification
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
		require.Len(t, listed, 2)
		assert.Equal(t, "Import done", listed[0].Title)
		assert.Equal(t, first.Id, listed[1].Id)
	})

	t.Run("foreign user sees nothing", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/notifications", foreignToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listed []notification.Notification
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
		assert.Empty(t, listed)
	})

	t.Run("unread count", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/notifications/unread-count", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var counted struct {
			Count int64 `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&counted))
		assert.Equal(t, int64(2), counted.Count)
	})

	t.Run("foreign user cannot mark read", func(t *testing.T) {
		resp := doRequest(t, "PUT", server.URL+"/notifications/"+first.Id+"/read", foreignToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("mark read then delete read", func(t *testing.T) {
		resp := doRequest(t, "PUT", server.URL+"/notifications/"+first.Id+"/read", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = doRequest(t, "GET", server.URL+"/notifications/unread-count", token, nil)
		var counted struct {
			Count int64 `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&counted))
		assert.Equal(t, int64(1), counted.Count)

		resp = doRequest(t, "DELETE", server.URL+"/notifications/read-all", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var deleted struct {
			Deleted int64 `json:"deleted"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&deleted))
		assert.Equal(t, int64(1), deleted.Deleted)
	})

	t.Run("mark all read", func(t *testing.T) {
		resp := doRequest(t, "PUT", server.URL+"/notifications/read-all", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = doRequest(t, "GET", server.URL+"/notifications/unread-count", token, nil)
		var counted struct {
			Count int64 `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&counted))
		assert.Equal(t, int64(0), counted.Count)
	})
}

func TestRESTServerProjects(t *testing.T) {
	server, _ := newRESTStack(t)
	token := signTestToken(t, "user-7", nil)

	t.Run("requires bearer token", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/projects", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("lists projects", func(t *testing.T) {
		resp := doRequest(t, "GET", server.URL+"/projects?limit=10", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listed []project.Project
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
		assert.Empty(t, listed)
	})
}

func TestRESTServerAPIKeyEndpoints(t *testing.T) {
	server, _ := newRESTStack(t)

	t.Run("create notification requires api key", func(t *testing.T) {
		body := []byte(`{"type":"t","title":"hello","message":"m"}`)

		resp := doRequest(t, "POST", server.URL+"/users/user-7/notifications", "", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("create notification with api key", func(t *testing.T) {
		body := []byte(`{"type":"t","title":"hello","message":"m"}`)

		req, err := http.NewRequest("POST", server.URL+"/users/user-7/notifications", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-API-Key", "test-api-key")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created notification.Notification
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		assert.NotEmpty(t, created.Id)
		assert.False(t, created.IsRead)
	})

	t.Run("publish with api key", func(t *testing.T) {
		body := []byte(`{"topic":"projects","kind":"project:updated","payload":{"id":"p-1"}}`)

		req, err := http.NewRequest("POST", server.URL+"/publish", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-API-Key", "test-api-key")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var event realtime.Event
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&event))
		assert.Equal(t, "projects", event.Topic)
		assert.NotEmpty(t, event.Id)
	})

	t.Run("start import with api key", func(t *testing.T) {
		body := []byte(`{"rows":[{"name":"alpha","status":"active","owner":"user-7"}]}`)

		req, err := http.NewRequest("POST", server.URL+"/imports", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-API-Key", "test-api-key")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var accepted struct {
			ImportId string `json:"importId"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
		assert.NotEmpty(t, accepted.ImportId)
	})
}
