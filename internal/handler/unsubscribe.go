package handler

import (
	"context"
	"errors"

	"github.com/goevery/tracker/internal/realtime"
)

type UnsubscribeRequest struct {
	Topic string `json:"topic"`
}

type UnsubscribeResponse struct {
	Success bool `json:"success"`
}

type UnsubscribeHandlerInterface interface {
	Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error)
}

type UnsubscribeHandler struct {
	topicValidator *TopicValidator
	registry       realtime.Registry
}

func NewUnsubscribeHandler(
	topicValidator *TopicValidator,
	registry realtime.Registry,
) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		topicValidator,
		registry,
	}
}

func (h *UnsubscribeHandler) Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error) {
	err := h.topicValidator.Validate(req.Topic)
	if err != nil {
		return UnsubscribeResponse{}, err
	}

	session, ok := realtime.SessionFromContext(ctx)
	if !ok {
		return UnsubscribeResponse{}, errors.New("session not found in context")
	}

	h.registry.Leave(req.Topic, session.Id)

	return UnsubscribeResponse{
		Success: true,
	}, nil
}
