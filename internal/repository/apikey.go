package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/usermgmt/usermgmt/internal/model"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
)

// CreateAPIKey inserts a new API key into the database.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, key, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Exec(ctx, query,
		key.ID,
		key.UserID,
		key.Key,
		key.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetAPIKeyByValue retrieves an API key by its key value.
func (r *Repository) GetAPIKeyByValue(ctx context.Context, value string) (*model.APIKey, error) {
	query := `
		SELECT id, user_id, key, created_at
		FROM api_keys
		WHERE key = $1
	`

	var key model.APIKey
	err := r.db.QueryRow(ctx, query, value).Scan(
		&key.ID,
		&key.UserID,
		&key.Key,
		&key.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// DeleteAPIKeyByValue removes the key with the given value.
// Returns ErrAPIKeyNotFound when no row matched.
func (r *Repository) DeleteAPIKeyByValue(ctx context.Context, value string) error {
	query := `
		DELETE FROM api_keys
		WHERE key = $1
	`

	result, err := r.db.Exec(ctx, query, value)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// DeleteExpiredAPIKeys removes every key issued before cutoff and returns how many were removed.
func (r *Repository) DeleteExpiredAPIKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM api_keys
		WHERE created_at < $1
	`

	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired API keys: %w", err)
	}

	return result.RowsAffected(), nil
}
