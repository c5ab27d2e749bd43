package handler

import (
	"context"
	"errors"

	"github.com/goevery/tracker/internal/auth"
	"github.com/goevery/tracker/internal/ierr"
	"github.com/goevery/tracker/internal/realtime"
)

// PublishRequest lets trusted backends inject an event directly. Browser
// sessions never carry the publish scope.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

type PublishHandlerInterface interface {
	Handle(ctx context.Context, req PublishRequest) (realtime.Event, error)
}

type PublishHandler struct {
	topicValidator *TopicValidator
	broadcaster    *realtime.Broadcaster
}

func NewPublishHandler(
	topicValidator *TopicValidator,
	broadcaster *realtime.Broadcaster,
) *PublishHandler {
	return &PublishHandler{
		topicValidator,
		broadcaster,
	}
}

func (h *PublishHandler) Handle(ctx context.Context, req PublishRequest) (realtime.Event, error) {
	var authentication *auth.Authentication

	session, ok := realtime.SessionFromContext(ctx)
	if ok {
		authentication = session.Authentication()
	}

	if authentication == nil {
		authentication, ok = auth.AuthenticationFromContext(ctx)
		if !ok {
			return realtime.Event{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
		}
	}

	if !authentication.IsPublisher() {
		return realtime.Event{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to publish events"))
	}

	err := h.topicValidator.Validate(req.Topic)
	if err != nil {
		return realtime.Event{}, err
	}

	event := h.broadcaster.Publish(req.Topic, realtime.EventKind(req.Kind), req.Payload)

	return event, nil
}
