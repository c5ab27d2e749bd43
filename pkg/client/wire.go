// Package client is the Go client for the tracker's realtime layer: a
// websocket transport with reconnect/resubscribe, REST access to the same
// state, and stores that merge both feeds into one consistent local view.
package client

import (
	"encoding/json"
	"time"
)

// Event kinds pushed by the server.
const (
	KindProjectCreated  = "project:created"
	KindProjectUpdated  = "project:updated"
	KindProjectDeleted  = "project:deleted"
	KindImportProgress  = "import:progress"
	KindNotificationNew = "notification:new"
)

const (
	TopicProjects = "projects"
)

func ImportTopic(importId string) string {
	return "import:" + importId
}

func UserTopic(userId string) string {
	return "user:" + userId
}

type Event struct {
	Id        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Topic     string          `json:"topic"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emittedAt"`
}

type Notification struct {
	Id        string            `json:"id"`
	UserId    string            `json:"userId"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	IsRead    bool              `json:"isRead"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type Project struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Owner     string    `json:"owner"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ImportProgress struct {
	ImportId  string `json:"importId"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
}

// wireRequest is the client-to-server envelope.
type wireRequest struct {
	Id     string `json:"id,omitempty"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// wireFrame is any incoming frame: a reply (RequestId set) or a server push
// (Method set).
type wireFrame struct {
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	RequestId string          `json:"requestId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *WireError      `json:"error,omitempty"`
}

// WireError is a coded error relayed from the server.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return e.Code + ": " + e.Message
}
