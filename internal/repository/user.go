package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/usermgmt/usermgmt/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
)

var userColumns = []string{
	"id",
	"username",
	"full_name",
	"email",
	"mobile_number",
	"language",
	"culture",
	"password_hash",
	"created_at",
	"updated_at",
}

// psql builds statements with $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			user.FullName,
			user.Email,
			user.MobileNumber,
			user.Language,
			user.Culture,
			user.PasswordHash,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user query: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, squirrel.Eq{"id": id})
}

// GetUserByUsername retrieves a user by exact username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getUser(ctx, squirrel.Eq{"username": username})
}

func (r *Repository) getUser(ctx context.Context, where squirrel.Eq) (*model.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user query: %w", err)
	}

	var user model.User
	if err := pgxscan.Get(ctx, r.db, &user, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// UsernameExists reports whether any user has the given username.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	query, args, err := psql.Select("1").
		Prefix("SELECT EXISTS (").
		From("users").
		Where(squirrel.Eq{"username": username}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build username exists query: %w", err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// CountUsers returns the number of stored users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	query, args, err := psql.Select("COUNT(*)").From("users").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count users query: %w", err)
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListUsers returns all users ordered by creation time.
func (r *Repository) ListUsers(ctx context.Context) ([]*model.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		OrderBy("created_at ASC", "username ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users query: %w", err)
	}

	users := make([]*model.User, 0)
	if err := pgxscan.Select(ctx, r.db, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser writes every mutable column of user.
// Partial-update semantics are resolved by the caller.
func (r *Repository) UpdateUser(ctx context.Context, user *model.User) error {
	query, args, err := psql.Update("users").
		SetMap(map[string]any{
			"username":      user.Username,
			"full_name":     user.FullName,
			"email":         user.Email,
			"mobile_number": user.MobileNumber,
			"language":      user.Language,
			"culture":       user.Culture,
			"password_hash": user.PasswordHash,
			"updated_at":    user.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user query: %w", err)
	}

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// DeleteUser removes a user. Their API keys go with them (ON DELETE CASCADE).
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	query, args, err := psql.Delete("users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user query: %w", err)
	}

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
