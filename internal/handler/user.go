package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/handler/dto"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/service"
)

// UserManager is the user service surface used by UserHandler.
type UserManager interface {
	Create(ctx context.Context, input service.CreateUserInput) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	Update(ctx context.Context, id string, input service.UpdateUserInput) (*model.User, error)
	Delete(ctx context.Context, id string) error
}

// UserHandler handles HTTP requests for user operations.
// All routes sit behind the API key gate.
type UserHandler struct {
	svc    UserManager
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc UserManager, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		svc:    svc,
		logger: logger,
	}
}

// Get handles GET /users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// GetByName handles GET /users/byName/{username}.
func (h *UserHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUserListResponse(users))
}

// Create handles POST /users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.svc.Create(r.Context(), req.ToInput())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("user_created",
		"user_id", user.ID,
		"by_user_id", auth.UserIDFromContext(r.Context()),
	)

	w.Header().Set("Location", "/users/"+user.ID)
	writeJSON(w, http.StatusCreated, dto.ToUserResponse(user))
}

// Update handles PUT /users/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req.ToInput())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// Delete handles DELETE /users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("user_deleted",
		"user_id", id,
		"by_user_id", auth.UserIDFromContext(r.Context()),
	)

	w.WriteHeader(http.StatusOK)
}
