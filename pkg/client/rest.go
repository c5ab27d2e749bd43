package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx REST reply. Store operations treat it as
// recoverable: the previous cache stays visible and the store records the
// error instead of emptying itself.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// API is the REST half of the client: the reconciliation stores pull
// snapshots and pages from here and merge them with pushed events.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPI(baseURL string, token string) *API {
	return &API{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *API) ListNotifications(ctx context.Context, limit int, offset int, unreadOnly bool) ([]Notification, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	if unreadOnly {
		query.Set("unread_only", "true")
	}

	var notifications []Notification
	err := a.do(ctx, http.MethodGet, "/notifications?"+query.Encode(), nil, &notifications)

	return notifications, err
}

func (a *API) UnreadCount(ctx context.Context) (int64, error) {
	var result struct {
		Count int64 `json:"count"`
	}
	err := a.do(ctx, http.MethodGet, "/notifications/unread-count", nil, &result)

	return result.Count, err
}

func (a *API) MarkRead(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (a *API) MarkAllRead(ctx context.Context) error {
	return a.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

func (a *API) DeleteNotification(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}

func (a *API) DeleteRead(ctx context.Context) error {
	return a.do(ctx, http.MethodDelete, "/notifications/read-all", nil, nil)
}

func (a *API) ListProjects(ctx context.Context, limit int, offset int) ([]Project, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var projects []Project
	err := a.do(ctx, http.MethodGet, "/projects?"+query.Encode(), nil, &projects)

	return projects, err
}

func (a *API) do(ctx context.Context, method string, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := readErrorMessage(resp.Body)

		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func readErrorMessage(body io.Reader) string {
	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(body).Decode(&wrapper); err != nil || wrapper.Error.Message == "" {
		return "request failed"
	}

	return wrapper.Error.Message
}
