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

const conversationColumns = `c.conversation_id, c.type, c.name, c.description, c.privacy, c.member_limit, c.admin_id, c.created_at`

// ConversationRepository handles conversation and participant operations
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	err := row.Scan(
		&conv.ConversationID,
		&conv.Type,
		&conv.Name,
		&conv.Description,
		&conv.Privacy,
		&conv.MemberLimit,
		&conv.AdminID,
		&conv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.conversation_id = $1`

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		return nil, translate(err, "get conversation")
	}
	return conv, nil
}

// GetDirectByPair retrieves the one-to-one conversation of a canonical user pair
func (r *ConversationRepository) GetDirectByPair(ctx context.Context, pair domain.DirectPair) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM direct_pairs d
		JOIN conversations c ON c.conversation_id = d.conversation_id
		WHERE d.user_low = $1 AND d.user_high = $2
	`

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, pair.Low, pair.High))
	if err != nil {
		return nil, translate(err, "get direct conversation")
	}
	return conv, nil
}

func insertConversation(ctx context.Context, q querier, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (
			conversation_id, type, name, description, privacy, member_limit, admin_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.Exec(ctx, query,
		conv.ConversationID,
		conv.Type,
		conv.Name,
		conv.Description,
		conv.Privacy,
		conv.MemberLimit,
		conv.AdminID,
		conv.CreatedAt,
	)
	return translate(err, "create conversation")
}

func insertParticipant(ctx context.Context, q querier, conversationID, userID uuid.UUID, joinedAt time.Time) error {
	query := `INSERT INTO participants (conversation_id, user_id, joined_at) VALUES ($1, $2, $3)`
	_, err := q.Exec(ctx, query, conversationID, userID, joinedAt)
	return translate(err, "add participant")
}

// CreateDirect creates a one-to-one conversation with its pair key and both participants.
// The direct_pairs primary key turns a concurrent duplicate into ErrConflict.
func (r *ConversationRepository) CreateDirect(ctx context.Context, conv *domain.Conversation, pair domain.DirectPair) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertConversation(ctx, tx, conv); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO direct_pairs (user_low, user_high, conversation_id) VALUES ($1, $2, $3)`,
			pair.Low, pair.High, conv.ConversationID)
		if err != nil {
			return translate(err, "create direct pair")
		}

		for _, userID := range []uuid.UUID{pair.Low, pair.High} {
			if err := insertParticipant(ctx, tx, conv.ConversationID, userID, conv.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateGroup creates a group conversation with its admin as first participant
func (r *ConversationRepository) CreateGroup(ctx context.Context, conv *domain.Conversation) error {
	if conv.AdminID == nil {
		return fmt.Errorf("failed to create group: admin is required")
	}
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertConversation(ctx, tx, conv); err != nil {
			return err
		}
		return insertParticipant(ctx, tx, conv.ConversationID, *conv.AdminID, conv.CreatedAt)
	})
}

// addLocked checks membership and capacity while holding a row lock on the conversation.
// Capacity is checked before membership.
func addLocked(ctx context.Context, tx pgx.Tx, conversationID, userID uuid.UUID, limit int, joinedAt time.Time, allowExisting bool) (bool, error) {
	var locked uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT conversation_id FROM conversations WHERE conversation_id = $1 FOR UPDATE`,
		conversationID).Scan(&locked)
	if err != nil {
		return false, translate(err, "lock conversation")
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID).Scan(&exists)
	if err != nil {
		return false, translate(err, "check participant")
	}
	if exists && allowExisting {
		return false, nil
	}

	if limit > 0 {
		var count int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM participants WHERE conversation_id = $1`,
			conversationID).Scan(&count)
		if err != nil {
			return false, translate(err, "count participants")
		}
		if count >= limit {
			return false, repository.ErrCapacity
		}
	}

	if exists {
		return false, fmt.Errorf("failed to add participant: %w", repository.ErrConflict)
	}

	if err := insertParticipant(ctx, tx, conversationID, userID, joinedAt); err != nil {
		return false, err
	}
	return true, nil
}

// AddParticipant adds a user under the member limit; limit <= 0 means unlimited
func (r *ConversationRepository) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID, limit int, joinedAt time.Time) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := addLocked(ctx, tx, conversationID, userID, limit, joinedAt, false)
		return err
	})
}

// EnsureParticipant adds a user unless already a member
func (r *ConversationRepository) EnsureParticipant(ctx context.Context, conversationID, userID uuid.UUID, limit int, joinedAt time.Time) (bool, error) {
	var added bool
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		added, err = addLocked(ctx, tx, conversationID, userID, limit, joinedAt, true)
		return err
	})
	return added, err
}

// RemoveParticipant deletes a membership; reports whether a row was removed
func (r *ConversationRepository) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM participants WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IsParticipant checks if a user is a participant of a conversation
func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return exists, nil
}

// GetParticipants lists participants with usernames, in join order
func (r *ConversationRepository) GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]domain.Participant, error) {
	query := `
		SELECT p.conversation_id, p.user_id, u.username, p.joined_at
		FROM participants p
		JOIN users u ON u.user_id = p.user_id
		WHERE p.conversation_id = $1
		ORDER BY p.joined_at ASC, u.username ASC
	`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	participants := []domain.Participant{}
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Username, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// ListForUser lists the user's conversations, newest first
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.conversation_id
		WHERE p.user_id = $1
		ORDER BY c.created_at DESC, c.conversation_id ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return conversations, nil
}
