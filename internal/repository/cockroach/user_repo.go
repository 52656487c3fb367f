package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
)

const userColumns = `user_id, username, avatar_url, auto_delete_hours, last_activity, is_online, created_at, updated_at`

// UserRepository handles user data operations in CockroachDB
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.AvatarURL,
		&user.AutoDeleteHours,
		&user.LastActivity,
		&user.IsOnline,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func collectUsers(rows pgx.Rows) ([]*domain.User, error) {
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		user.UserID,
		user.Username,
		user.AvatarURL,
		user.AutoDeleteHours,
		user.LastActivity,
		user.IsOnline,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translate(err, "create user")
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, translate(err, "get user")
	}
	return user, nil
}

// GetByUsername retrieves a user by exact username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, translate(err, "get user by username")
	}
	return user, nil
}

// GetByIDs retrieves the users that exist among userIDs
func (r *UserRepository) GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return collectUsers(rows)
}

// List returns all users, most recently active first
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY last_activity DESC, username ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return collectUsers(rows)
}

// ListOnline returns users flagged online whose activity is at or after since
func (r *UserRepository) ListOnline(ctx context.Context, since time.Time) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_online AND last_activity >= $1
		ORDER BY last_activity DESC, username ASC
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	return collectUsers(rows)
}

// TouchActivity records activity and marks the user online
func (r *UserRepository) TouchActivity(ctx context.Context, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE users
		SET last_activity = $2, is_online = true, updated_at = $2
		WHERE user_id = $1
	`
	return r.updateOne(ctx, "touch activity", query, userID, at)
}

// SetOffline clears the online flag
func (r *UserRepository) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	query := `UPDATE users SET is_online = false, updated_at = $2 WHERE user_id = $1`
	return r.updateOne(ctx, "set offline", query, userID, at)
}

// UpdateAutoDeleteHours changes the message TTL preference
func (r *UserRepository) UpdateAutoDeleteHours(ctx context.Context, userID uuid.UUID, hours int, at time.Time) error {
	query := `UPDATE users SET auto_delete_hours = $3, updated_at = $2 WHERE user_id = $1`
	return r.updateOne(ctx, "update preferences", query, userID, at, hours)
}

func (r *UserRepository) updateOne(ctx context.Context, action, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return translate(err, action)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
