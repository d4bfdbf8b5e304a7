package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/handler/dto"
	"github.com/usermgmt/usermgmt/internal/middleware"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/service"
	"github.com/usermgmt/usermgmt/internal/testutil"
)

const seedPassword = "TestPass1"

type testEnv struct {
	router http.Handler
	store  *testutil.MemStore
	clock  *testutil.FakeClock
	users  *service.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	store := testutil.NewMemStore()
	clock := testutil.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	hasher := auth.NewPasswordHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)

	users := service.NewUserService(store, hasher, nil, logger)
	seeded, err := users.SeedDefaults(context.Background(), seedPassword)
	require.NoError(t, err)
	require.True(t, seeded)

	keys := service.NewAPIKeyService(store, store, hasher, nil, logger, service.WithClock(clock.Now))

	authHandler := NewAuthHandler(keys, logger)
	userHandler := NewUserHandler(users, logger)

	r := chi.NewRouter()
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)
	r.Post("/login", authHandler.Login)
	r.Delete("/logout", authHandler.Logout)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(middleware.AuthConfig{Logger: logger, Validator: keys}))
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)
			r.Get("/byName/{username}", userHandler.GetByName)
			r.Get("/{id}", userHandler.Get)
			r.Put("/{id}", userHandler.Update)
			r.Delete("/{id}", userHandler.Delete)
		})
	})

	return &testEnv{router: r, store: store, clock: clock, users: users}
}

func (e *testEnv) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/login", "", model.LoginRequest{Username: "admin", Password: seedPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp model.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Key)
	return resp.Key
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// ============================================================================
// Login / Logout
// ============================================================================

func TestAuthHandler_Login(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        any
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:       "valid credentials",
			body:       model.LoginRequest{Username: "admin", Password: seedPassword},
			wantStatus: http.StatusOK,
		},
		{
			name:        "unknown user",
			body:        model.LoginRequest{Username: "ghost", Password: seedPassword},
			wantStatus:  http.StatusUnauthorized,
			wantCode:    CodeUserNotFound,
			wantMessage: "User not found.",
		},
		{
			name:        "wrong password",
			body:        model.LoginRequest{Username: "admin", Password: "WrongPass1"},
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "INVALID_CREDENTIALS",
			wantMessage: "Password is incorrect.",
		},
		{
			name:       "malformed body",
			body:       `{"username":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidJSON,
		},
		{
			name:       "missing password",
			body:       map[string]string{"username": "admin"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/login", "", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus == http.StatusOK {
				var resp model.LoginResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.True(t, auth.ValidateKeyFormat(resp.Key), "key %q", resp.Key)
				assert.True(t, resp.ExpiresAt.Equal(env.clock.Now().Add(model.APIKeyTTL)), "expiresAt = %s", resp.ExpiresAt)
				assert.Equal(t, 1, env.store.KeyCount())
				return
			}

			body := decodeError(t, rec)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body.Message)
			}
			assert.Equal(t, 0, env.store.KeyCount())
		})
	}
}

func TestAuthHandler_LoginStoreFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.store.SetError(errors.New("connection reset"))

	rec := env.do(t, http.MethodPost, "/login", "", model.LoginRequest{Username: "admin", Password: seedPassword})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, CodeInternalError, body.Code)
	assert.NotContains(t, body.Message, "connection reset")
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	key := env.login(t)

	rec := env.do(t, http.MethodDelete, "/logout", key, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/logout", key, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeAPIKeyNotFound, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/users", key, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_LogoutWithoutUsableKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{"missing header", ""},
		{"unparsable key", "definitely-not-a-uuid"},
		{"unknown key", "6f1c0b8e-2d4a-4f7e-9a3b-5c1d2e3f4a5b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)

			rec := env.do(t, http.MethodDelete, "/logout", tt.key, nil)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestAuthHandler_LogoutExpiredKey(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	key := env.login(t)

	env.clock.Advance(model.APIKeyTTL + time.Second)

	rec := env.do(t, http.MethodGet, "/users", key, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, middleware.CodeAPIKeyExpired, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodDelete, "/logout", key, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================================================
// Gate
// ============================================================================

func TestUserRoutes_RequireKey(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/users"},
		{http.MethodPost, "/users"},
		{http.MethodGet, "/users/byName/admin"},
		{http.MethodGet, "/users/6f1c0b8e-2d4a-4f7e-9a3b-5c1d2e3f4a5b"},
		{http.MethodPut, "/users/6f1c0b8e-2d4a-4f7e-9a3b-5c1d2e3f4a5b"},
		{http.MethodDelete, "/users/6f1c0b8e-2d4a-4f7e-9a3b-5c1d2e3f4a5b"},
	}

	for _, route := range routes {
		rec := env.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
		assert.Equal(t, "API Key is missing.", decodeError(t, rec).Message)
	}
}

func TestUserRoutes_KeyValidUntilTTL(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	key := env.login(t)

	env.clock.Advance(model.APIKeyTTL)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/users", key, nil).Code)

	env.clock.Advance(time.Microsecond)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/users", key, nil).Code)
}

// ============================================================================
// Users
// ============================================================================

func TestUserHandler_ListAndGet(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	key := env.login(t)

	rec := env.do(t, http.MethodGet, "/users", key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	var list []model.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 2)

	rec = env.do(t, http.MethodGet, "/users/byName/test", key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var byName model.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&byName))
	assert.Equal(t, "Test User", *byName.FullName)

	rec = env.do(t, http.MethodGet, "/users/"+byName.ID, key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var byID model.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&byID))
	assert.Equal(t, byName, byID)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/users/byName/nobody", key, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/users/not-a-uuid", key, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/users/6f1c0b8e-2d4a-4f7e-9a3b-5c1d2e3f4a5b", key, nil).Code)
}

func TestUserHandler_Create(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	key := env.login(t)

	req := dto.CreateUserRequest{
		Username: "jane",
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Password: "Secret123",
	}

	rec := env.do(t, http.MethodPost, "/users", key, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "/users/"+created.ID, rec.Header().Get("Location"))
	assert.Equal(t, "jane", created.Username)
	assert.Nil(t, created.MobileNumber)

	rec = env.do(t, http.MethodPost, "/users", key, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeUsernameTaken, decodeError(t, rec).Code)

	// The new account can log in with its own password.
	rec = env.do(t, http.MethodPost, "/login", "", model.LoginRequest{Username: "jane", Password: "Secret123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserHandler_CreateRejectsInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"malformed json", `{"username":"x"`, CodeInvalidJSON},
		{"trailing data", `{"username":"x"} {}`, CodeInvalidJSON},
		{"missing email", dto.CreateUserRequest{Username: "x", Password: "Secret123"}, CodeValidationFailed},
		{"weak password", dto.CreateUserRequest{Username: "x", Email: "x@example.com", Password: "short"}, CodeInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			key := env.login(t)

			rec := env.do(t, http.MethodPost, "/users", key, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestUserHandler_Update(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	key := env.login(t)

	target, err := env.users.GetByUsername(context.Background(), "test")
	require.NoError(t, err)

	newName := "Renamed"
	rec := env.do(t, http.MethodPut, "/users/"+target.ID, key, dto.UpdateUserRequest{
		Username: "test2",
		Email:    "test2@example.com",
		FullName: &newName,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated model.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, "test2", updated.Username)
	assert.Equal(t, "Renamed", *updated.FullName)
	require.NotNil(t, updated.MobileNumber)
	assert.Equal(t, "123123123", *updated.MobileNumber)
	assert.Equal(t, "en-US", *updated.Culture)

	rec = env.do(t, http.MethodPut, "/users/"+target.ID, key, dto.UpdateUserRequest{
		Username: "admin",
		Email:    "test2@example.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeUsernameTaken, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPut, "/users/6f1c0b8e-2d4a-4f7e-9a3b-5c1d2e3f4a5b", key, dto.UpdateUserRequest{
		Username: "ghost",
		Email:    "ghost@example.com",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserHandler_DeleteRevokesKeys(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	adminKey := env.login(t)

	rec := env.do(t, http.MethodPost, "/login", "", model.LoginRequest{Username: "test", Password: seedPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	var testLogin model.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&testLogin))

	target, err := env.users.GetByUsername(context.Background(), "test")
	require.NoError(t, err)

	rec = env.do(t, http.MethodDelete, "/users/"+target.ID, adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/users/"+target.ID, adminKey, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/users", testLogin.Key, nil).Code)
	assert.Equal(t, 1, env.store.KeyCount())
}

func TestHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}
