package handler

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/tracker/internal/realtime"
)

type SubscribeRequest struct {
	Topic string `json:"topic"`
}

type SubscribeResponse struct {
	SubscriptionId string    `json:"subscriptionId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type SubscribeHandlerInterface interface {
	Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error)
}

type SubscribeHandler struct {
	topicValidator *TopicValidator
	registry       realtime.Registry
}

func NewSubscribeHandler(
	topicValidator *TopicValidator,
	registry realtime.Registry,
) *SubscribeHandler {

	return &SubscribeHandler{
		topicValidator,
		registry,
	}
}

func (h *SubscribeHandler) Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error) {
	err := h.topicValidator.Validate(req.Topic)
	if err != nil {
		return SubscribeResponse{}, err
	}

	session, ok := realtime.SessionFromContext(ctx)
	if !ok {
		return SubscribeResponse{}, errors.New("session not found in context")
	}

	err = session.CanSubscribe(req.Topic)
	if err != nil {
		return SubscribeResponse{}, err
	}

	h.registry.Join(req.Topic, session)

	return SubscribeResponse{
		SubscriptionId: session.Id,
		Timestamp:      time.Now(),
	}, nil
}
