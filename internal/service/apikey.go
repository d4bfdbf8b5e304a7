package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/usermgmt/usermgmt/internal/audit"
	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/metrics"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/repository"
)

// APIKeyRepository persists issued API keys.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByValue(ctx context.Context, value string) (*model.APIKey, error)
	DeleteAPIKeyByValue(ctx context.Context, value string) error
	DeleteExpiredAPIKeys(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserFinder resolves users at login.
type UserFinder interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// IssuedKey is returned once at login. It is the only place the raw key value is disclosed.
type IssuedKey struct {
	Key       string
	ExpiresAt time.Time
}

// APIKeyService issues, validates and revokes API keys.
type APIKeyService struct {
	keys          APIKeyRepository
	users         UserFinder
	hasher        *auth.PasswordHasher
	metrics       metrics.Recorder
	audit         audit.Emitter
	logger        *slog.Logger
	now           func() time.Time
	sweepOnLogout bool
}

// APIKeyOption configures an APIKeyService.
type APIKeyOption func(*APIKeyService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) APIKeyOption {
	return func(s *APIKeyService) {
		s.now = now
	}
}

// WithSweepOnLogout toggles the expiry sweep that follows a successful logout.
func WithSweepOnLogout(enabled bool) APIKeyOption {
	return func(s *APIKeyService) {
		s.sweepOnLogout = enabled
	}
}

// WithAuditor sends login and logout events to e.
func WithAuditor(e audit.Emitter) APIKeyOption {
	return func(s *APIKeyService) {
		s.audit = e
	}
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(
	keys APIKeyRepository,
	users UserFinder,
	hasher *auth.PasswordHasher,
	recorder metrics.Recorder,
	logger *slog.Logger,
	opts ...APIKeyOption,
) *APIKeyService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &APIKeyService{
		keys:          keys,
		users:         users,
		hasher:        hasher,
		metrics:       recorder,
		audit:         audit.Nop{},
		logger:        logger,
		now:           time.Now,
		sweepOnLogout: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and issues a new key valid for model.APIKeyTTL.
func (s *APIKeyService) Login(ctx context.Context, username, password string) (*IssuedKey, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncLogin(metrics.LoginUserNotFound)
			s.emitLoginFailed("", username, metrics.LoginUserNotFound)
			return nil, ErrUserNotFound
		}
		s.metrics.IncLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.metrics.IncLogin(metrics.LoginInvalidPassword)
		s.emitLoginFailed(user.ID, username, metrics.LoginInvalidPassword)
		return nil, ErrInvalidCredentials
	}

	value, err := auth.GenerateKey()
	if err != nil {
		s.metrics.IncLogin(metrics.LoginError)
		return nil, err
	}

	// Postgres stores microseconds; truncate so ExpiresAt matches the stored row.
	now := s.now().UTC().Truncate(time.Microsecond)
	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		Key:       value,
		CreatedAt: now,
	}

	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		s.metrics.IncLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to store API key: %w", err)
	}

	s.metrics.IncLogin(metrics.LoginSuccess)
	s.logger.Info("api key issued",
		"user_id", user.ID,
		"key_id", key.ID,
		"expires_at", key.ExpiresAt(),
	)

	event := audit.NewEvent(audit.LoginSucceeded, now)
	event.UserID = user.ID
	event.Username = user.Username
	event.KeyID = key.ID
	s.audit.Emit(event)

	return &IssuedKey{Key: value, ExpiresAt: key.ExpiresAt()}, nil
}

// Validate returns the stored key when keyValue is known and unexpired.
// It never mutates the key; expiry is absolute from issuance.
func (s *APIKeyService) Validate(ctx context.Context, keyValue string) (*model.APIKey, error) {
	canonical, err := auth.ParseKey(keyValue)
	if err != nil {
		return nil, ErrKeyInvalid
	}

	key, err := s.keys.GetAPIKeyByValue(ctx, canonical)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrKeyInvalid
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	if key.IsExpired(s.now()) {
		return nil, ErrKeyExpired
	}

	return key, nil
}

// Logout deletes the key and reports whether it existed.
// Expired keys can still be logged out. A successful logout also sweeps expired keys
// unless disabled; sweep failures are logged only.
func (s *APIKeyService) Logout(ctx context.Context, keyValue string) bool {
	canonical, err := auth.ParseKey(keyValue)
	if err != nil {
		s.metrics.IncLogout(false)
		return false
	}

	stored, err := s.keys.GetAPIKeyByValue(ctx, canonical)
	if err != nil {
		if !errors.Is(err, repository.ErrAPIKeyNotFound) {
			s.logger.Error("failed to look up API key",
				"key_fingerprint", auth.QuickHash(canonical),
				"error", err,
			)
		}
		s.metrics.IncLogout(false)
		return false
	}

	if err := s.keys.DeleteAPIKeyByValue(ctx, canonical); err != nil {
		if !errors.Is(err, repository.ErrAPIKeyNotFound) {
			s.logger.Error("failed to delete API key",
				"key_fingerprint", auth.QuickHash(canonical),
				"error", err,
			)
		}
		s.metrics.IncLogout(false)
		return false
	}

	s.metrics.IncLogout(true)

	event := audit.NewEvent(audit.LoggedOut, s.now())
	event.UserID = stored.UserID
	event.KeyID = stored.ID
	s.audit.Emit(event)

	if s.sweepOnLogout {
		if _, err := s.SweepExpired(ctx); err != nil {
			s.logger.Warn("expiry sweep after logout failed", "error", err)
		}
	}

	return true
}

// SweepExpired deletes every key issued more than model.APIKeyTTL ago.
func (s *APIKeyService) SweepExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.now().Add(-model.APIKeyTTL)

	removed, err := s.keys.DeleteExpiredAPIKeys(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired API keys: %w", err)
	}

	s.metrics.ObserveSweep(removed, time.Since(start))
	if removed > 0 {
		s.logger.Debug("expired api keys swept", "removed", removed)
	}
	return removed, nil
}

func (s *APIKeyService) emitLoginFailed(userID, username, reason string) {
	event := audit.NewEvent(audit.LoginFailed, s.now())
	event.UserID = userID
	event.Username = audit.TruncateUsername(username)
	event.Reason = reason
	s.audit.Emit(event)
}
