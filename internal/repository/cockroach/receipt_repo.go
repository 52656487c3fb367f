package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatcore-backend/internal/domain"
)

const receiptColumns = `message_id, recipient_id, is_delivered, delivered_at, is_read, read_at`

// ReceiptRepository handles delivery receipts in CockroachDB
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository creates a new ReceiptRepository
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

func scanReceipt(row pgx.Row) (*domain.Receipt, error) {
	rc := &domain.Receipt{}
	err := row.Scan(
		&rc.MessageID,
		&rc.RecipientID,
		&rc.Delivered,
		&rc.DeliveredAt,
		&rc.Read,
		&rc.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// CreateBatch inserts pending receipts, skipping pairs that already exist
func (r *ReceiptRepository) CreateBatch(ctx context.Context, messageID uuid.UUID, recipientIDs []uuid.UUID) (int, error) {
	if len(recipientIDs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO delivery_receipts (message_id, recipient_id)
		SELECT $1, unnest($2::UUID[])
		ON CONFLICT (message_id, recipient_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, messageID, recipientIDs)
	if err != nil {
		return 0, translate(err, "create receipts")
	}
	return int(tag.RowsAffected()), nil
}

// Get retrieves the receipt of one recipient for one message
func (r *ReceiptRepository) Get(ctx context.Context, messageID, recipientID uuid.UUID) (*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM delivery_receipts WHERE message_id = $1 AND recipient_id = $2`

	rc, err := scanReceipt(r.pool.QueryRow(ctx, query, messageID, recipientID))
	if err != nil {
		return nil, translate(err, "get receipt")
	}
	return rc, nil
}

// MarkRead sets delivered and read together on first call; later calls keep the first timestamps
func (r *ReceiptRepository) MarkRead(ctx context.Context, messageID, recipientID uuid.UUID, at time.Time) (*domain.Receipt, error) {
	query := `
		UPDATE delivery_receipts
		SET is_delivered = true,
		    delivered_at = $3,
		    is_read = true,
		    read_at = $3
		WHERE message_id = $1 AND recipient_id = $2 AND NOT is_read
		RETURNING ` + receiptColumns

	rc, err := scanReceipt(r.pool.QueryRow(ctx, query, messageID, recipientID, at))
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to mark receipt read: %w", err)
	}

	// Either already read or missing.
	rc, err = r.Get(ctx, messageID, recipientID)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// MarkConversationRead marks every unread receipt of the recipient in a conversation
func (r *ReceiptRepository) MarkConversationRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int, error) {
	query := `
		UPDATE delivery_receipts
		SET is_delivered = true,
		    delivered_at = $3,
		    is_read = true,
		    read_at = $3
		WHERE recipient_id = $2
		  AND NOT is_read
		  AND message_id IN (SELECT message_id FROM messages WHERE conversation_id = $1)
	`

	tag, err := r.pool.Exec(ctx, query, conversationID, recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListByMessage lists all receipts of a message
func (r *ReceiptRepository) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM delivery_receipts WHERE message_id = $1 ORDER BY recipient_id`

	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	receipts := []domain.Receipt{}
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, *rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return receipts, nil
}

// ListForRecipient returns the recipient's receipts for the given messages, keyed by message ID
func (r *ReceiptRepository) ListForRecipient(ctx context.Context, recipientID uuid.UUID, messageIDs []uuid.UUID) (map[uuid.UUID]domain.Receipt, error) {
	result := make(map[uuid.UUID]domain.Receipt, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + receiptColumns + ` FROM delivery_receipts WHERE recipient_id = $1 AND message_id = ANY($2)`

	rows, err := r.pool.Query(ctx, query, recipientID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipient receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		result[rc.MessageID] = *rc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return result, nil
}
