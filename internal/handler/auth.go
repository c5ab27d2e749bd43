package handler

import (
	"context"
	"errors"

	"github.com/goevery/tracker/internal/auth"
	"github.com/goevery/tracker/internal/realtime"
)

type AuthRequest struct {
	Token string `json:"token"`
}

type AuthResponse struct {
	Success bool `json:"success"`
}

type AuthHandlerInterface interface {
	Handle(ctx context.Context, req AuthRequest) (AuthResponse, error)
}

type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{
		authenticator,
	}
}

func (h *AuthHandler) Handle(ctx context.Context, req AuthRequest) (AuthResponse, error) {
	session, ok := realtime.SessionFromContext(ctx)
	if !ok {
		return AuthResponse{}, errors.New("session not found in context")
	}

	authentication, err := h.authenticator.AuthenticateJWT(req.Token)
	if err != nil {
		return AuthResponse{}, err
	}

	err = session.SetAuthentication(authentication)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		Success: true,
	}, nil
}
