package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/usermgmt/usermgmt/internal/middleware"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/service"
)

// KeyIssuer issues and revokes API keys.
type KeyIssuer interface {
	Login(ctx context.Context, username, password string) (*service.IssuedKey, error)
	Logout(ctx context.Context, keyValue string) bool
}

// AuthHandler handles login and logout.
type AuthHandler struct {
	keys   KeyIssuer
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(keys KeyIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		keys:   keys,
		logger: logger,
	}
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	issued, err := h.keys.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			h.logger.Warn("login_failed",
				"reason", "user_not_found",
				"request_id", middleware.GetRequestID(r.Context()),
			)
			writeError(w, http.StatusUnauthorized, CodeUserNotFound, msgUserNotFound)
		case errors.Is(err, service.ErrInvalidCredentials):
			h.logger.Warn("login_failed",
				"reason", "invalid_password",
				"username", req.Username,
				"request_id", middleware.GetRequestID(r.Context()),
			)
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", msgPasswordIncorrect)
		default:
			handleServiceError(w, h.logger, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResponse{
		Key:       issued.Key,
		ExpiresAt: issued.ExpiresAt.UTC(),
	})
}

// Logout handles DELETE /logout. The key is read from the apikey header;
// expired keys can still be logged out.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(middleware.APIKeyHeader)
	if key == "" || !h.keys.Logout(r.Context(), key) {
		writeError(w, http.StatusNotFound, CodeAPIKeyNotFound, msgAPIKeyNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
}
