package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/usermgmt/usermgmt/internal/audit"
	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/metrics"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/repository"
)

// UserRepository persists user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CountUsers(ctx context.Context) (int64, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
}

// UserService handles user account business logic.
type UserService struct {
	repo    UserRepository
	hasher  *auth.PasswordHasher
	metrics metrics.Recorder
	audit   audit.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

// UserOption configures a UserService.
type UserOption func(*UserService)

// WithUserAuditor sends account change events to e.
func WithUserAuditor(e audit.Emitter) UserOption {
	return func(s *UserService) {
		s.audit = e
	}
}

// NewUserService creates a new UserService.
func NewUserService(
	repo UserRepository,
	hasher *auth.PasswordHasher,
	recorder metrics.Recorder,
	logger *slog.Logger,
	opts ...UserOption,
) *UserService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &UserService{
		repo:    repo,
		hasher:  hasher,
		metrics: recorder,
		audit:   audit.Nop{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUserInput defines input for creating a user.
// Empty optional fields are stored as NULL.
type CreateUserInput struct {
	Username     string
	FullName     string
	Email        string
	MobileNumber string
	Language     string
	Culture      string
	Password     string
}

// UpdateUserInput defines input for updating a user.
// Username and Email always overwrite. Nil or empty optional fields keep the stored value,
// and an empty Password keeps the stored hash.
type UpdateUserInput struct {
	Username     string
	Email        string
	FullName     *string
	MobileNumber *string
	Language     *string
	Culture      *string
	Password     string
}

// Create registers a new user with a hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*model.User, error) {
	exists, err := s.repo.UsernameExists(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	user := &model.User{
		ID:           uuid.NewString(),
		Username:     input.Username,
		FullName:     model.StringPtr(input.FullName),
		Email:        input.Email,
		MobileNumber: model.StringPtr(input.MobileNumber),
		Language:     model.StringPtr(input.Language),
		Culture:      model.StringPtr(input.Culture),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent create of the same username.
		if errors.Is(err, repository.ErrUsernameExists) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.IncUserOperation(metrics.UserCreated)
	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	s.emit(audit.UserCreated, user.ID, user.Username)

	return user, nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if !validUserID(id) {
		return nil, ErrUserNotFound
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by exact username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// List returns every user.
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Update applies input to the user with the given ID.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*model.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Username = input.Username
	user.Email = input.Email
	user.FullName = keepIfEmpty(input.FullName, user.FullName)
	user.MobileNumber = keepIfEmpty(input.MobileNumber, user.MobileNumber)
	user.Language = keepIfEmpty(input.Language, user.Language)
	user.Culture = keepIfEmpty(input.Culture, user.Culture)

	if input.Password != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	user.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.metrics.IncUserOperation(metrics.UserUpdated)
	s.logger.Info("user updated", "user_id", user.ID)
	s.emit(audit.UserUpdated, user.ID, user.Username)

	return user, nil
}

// Delete removes a user and, through the foreign key, all of their API keys.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if !validUserID(id) {
		return ErrUserNotFound
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.metrics.IncUserOperation(metrics.UserDeleted)
	s.logger.Info("user deleted", "user_id", id)
	s.emit(audit.UserDeleted, id, "")

	return nil
}

// SeedDefaults creates the default accounts when no users exist.
// Reports whether anything was created.
func (s *UserService) SeedDefaults(ctx context.Context, password string) (bool, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	for _, input := range defaultUsers(password) {
		if _, err := s.Create(ctx, input); err != nil {
			return false, fmt.Errorf("failed to seed user %q: %w", input.Username, err)
		}
	}

	s.logger.Info("default users seeded", "count", len(defaultUsers(password)))
	return true, nil
}

func (s *UserService) emit(eventType, userID, username string) {
	event := audit.NewEvent(eventType, s.now())
	event.UserID = userID
	event.Username = username
	s.audit.Emit(event)
}

func defaultUsers(password string) []CreateUserInput {
	return []CreateUserInput{
		{
			Username:     "admin",
			FullName:     "Admin",
			Email:        "admin@example.com",
			MobileNumber: "123456789",
			Language:     "en",
			Culture:      "en-US",
			Password:     password,
		},
		{
			Username:     "test",
			FullName:     "Test User",
			Email:        "test@example.com",
			MobileNumber: "123123123",
			Language:     "en",
			Culture:      "en-US",
			Password:     password,
		},
	}
}

func keepIfEmpty(next, current *string) *string {
	if next == nil || *next == "" {
		return current
	}
	return next
}

// validUserID rejects IDs the uuid column could never hold.
func validUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
