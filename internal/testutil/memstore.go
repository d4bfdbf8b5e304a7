package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/repository"
)

// MemStore is an in-memory stand-in for repository.Repository.
// It mirrors the Postgres schema: unique usernames, unique key values,
// and api_keys cascading on user deletion.
type MemStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	keys  map[string]*model.APIKey // by key value
	err   error
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		users: make(map[string]*model.User),
		keys:  make(map[string]*model.APIKey),
	}
}

// SetError makes every subsequent call fail with err. Pass nil to recover.
func (s *MemStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// KeyCount returns the number of stored API keys.
func (s *MemStore) KeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Ping reports the injected error, if any.
func (s *MemStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *MemStore) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("duplicate user id %s", user.ID)
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *MemStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := s.GetUserByUsername(ctx, username)
	if err == repository.ErrUserNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *MemStore) CountUsers(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return int64(len(s.users)), nil
}

func (s *MemStore) ListUsers(_ context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *MemStore) UpdateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	for id, u := range s.users {
		if id != user.ID && u.Username == user.Username {
			return repository.ErrUsernameExists
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.users, id)
	for value, k := range s.keys {
		if k.UserID == id {
			delete(s.keys, value)
		}
	}
	return nil
}

func (s *MemStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.users[key.UserID]; !ok {
		return fmt.Errorf("api key references unknown user %s", key.UserID)
	}
	if _, ok := s.keys[key.Key]; ok {
		return fmt.Errorf("duplicate api key")
	}
	cp := *key
	s.keys[key.Key] = &cp
	return nil
}

func (s *MemStore) GetAPIKeyByValue(_ context.Context, value string) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	k, ok := s.keys[value]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *MemStore) DeleteAPIKeyByValue(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.keys[value]; !ok {
		return repository.ErrAPIKeyNotFound
	}
	delete(s.keys, value)
	return nil
}

func (s *MemStore) DeleteExpiredAPIKeys(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var removed int64
	for value, k := range s.keys {
		if k.CreatedAt.Before(cutoff) {
			delete(s.keys, value)
			removed++
		}
	}
	return removed, nil
}
