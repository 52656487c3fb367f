package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
)

// UserRepository is the in-memory UserRepository
type UserRepository struct {
	s *Store
}

// NewUserRepository creates a UserRepository over s
func NewUserRepository(s *Store) *UserRepository {
	return &UserRepository{s: s}
}

// Create inserts a new user
func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.usernames[user.Username]; taken {
		return fmt.Errorf("failed to create user: %w", repository.ErrConflict)
	}
	if _, exists := r.s.users[user.UserID]; exists {
		return fmt.Errorf("failed to create user: %w", repository.ErrConflict)
	}

	r.s.users[user.UserID] = copyUser(user)
	r.s.usernames[user.Username] = user.UserID
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(u), nil
}

// GetByUsername retrieves a user by exact username
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.usernames[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(r.s.users[id]), nil
}

// GetByIDs retrieves the users that exist among userIDs
func (r *UserRepository) GetByIDs(_ context.Context, userIDs []uuid.UUID) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var users []*domain.User
	for _, id := range userIDs {
		if u, ok := r.s.users[id]; ok {
			users = append(users, copyUser(u))
		}
	}
	return users, nil
}

// List returns all users, most recently active first
func (r *UserRepository) List(_ context.Context) ([]*domain.User, error) {
	return r.filter(func(*domain.User) bool { return true }), nil
}

// ListOnline returns users flagged online whose activity is at or after since
func (r *UserRepository) ListOnline(_ context.Context, since time.Time) ([]*domain.User, error) {
	return r.filter(func(u *domain.User) bool {
		return u.IsOnline && !u.LastActivity.Before(since)
	}), nil
}

func (r *UserRepository) filter(keep func(*domain.User) bool) []*domain.User {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]*domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		if keep(u) {
			users = append(users, copyUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].LastActivity.Equal(users[j].LastActivity) {
			return users[i].LastActivity.After(users[j].LastActivity)
		}
		return users[i].Username < users[j].Username
	})
	return users
}

func (r *UserRepository) update(userID uuid.UUID, fn func(u *domain.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

// TouchActivity records activity and marks the user online
func (r *UserRepository) TouchActivity(_ context.Context, userID uuid.UUID, at time.Time) error {
	return r.update(userID, func(u *domain.User) {
		u.LastActivity = at
		u.IsOnline = true
		u.UpdatedAt = at
	})
}

// SetOffline clears the online flag
func (r *UserRepository) SetOffline(_ context.Context, userID uuid.UUID, at time.Time) error {
	return r.update(userID, func(u *domain.User) {
		u.IsOnline = false
		u.UpdatedAt = at
	})
}

// UpdateAutoDeleteHours changes the message TTL preference
func (r *UserRepository) UpdateAutoDeleteHours(_ context.Context, userID uuid.UUID, hours int, at time.Time) error {
	return r.update(userID, func(u *domain.User) {
		u.AutoDeleteHours = hours
		u.UpdatedAt = at
	})
}
