package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatcore-backend/internal/domain"
)

const messageSelect = `
	SELECT m.message_id, m.conversation_id, m.sender_id, m.content, m.content_type,
	       m.sent_at, m.edited, m.edited_at, m.expires_at,
	       f.file_id, f.storage_key, f.file_name, f.mime_type, f.size_bytes, f.hash, f.uploaded_at
	FROM messages m
	LEFT JOIN file_messages f ON f.message_id = m.message_id
`

// MessageRepository handles ledger operations in CockroachDB
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	var (
		fileID     *uuid.UUID
		storageKey *string
		fileName   *string
		mimeType   *string
		sizeBytes  *int64
		hash       *string
		uploadedAt *time.Time
	)

	err := row.Scan(
		&msg.MessageID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.ContentType,
		&msg.SentAt,
		&msg.Edited,
		&msg.EditedAt,
		&msg.ExpiresAt,
		&fileID,
		&storageKey,
		&fileName,
		&mimeType,
		&sizeBytes,
		&hash,
		&uploadedAt,
	)
	if err != nil {
		return nil, err
	}

	if fileID != nil {
		msg.File = &domain.FileMessage{
			FileID:     *fileID,
			MessageID:  msg.MessageID,
			StorageKey: *storageKey,
			FileName:   *fileName,
			MimeType:   *mimeType,
			SizeBytes:  *sizeBytes,
			Hash:       *hash,
			UploadedAt: *uploadedAt,
		}
	}
	return msg, nil
}

// Create inserts a message and its file payload atomically
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (
				message_id, conversation_id, sender_id, content, content_type,
				sent_at, edited, edited_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			msg.MessageID,
			msg.ConversationID,
			msg.SenderID,
			msg.Content,
			msg.ContentType,
			msg.SentAt,
			msg.Edited,
			msg.EditedAt,
			msg.ExpiresAt,
		)
		if err != nil {
			return translate(err, "create message")
		}

		if msg.File == nil {
			return nil
		}

		f := msg.File
		_, err = tx.Exec(ctx, `
			INSERT INTO file_messages (
				file_id, message_id, storage_key, file_name, mime_type, size_bytes, hash, uploaded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			f.FileID,
			msg.MessageID,
			f.StorageKey,
			f.FileName,
			f.MimeType,
			f.SizeBytes,
			f.Hash,
			f.UploadedAt,
		)
		return translate(err, "create file message")
	})
}

// GetByID retrieves a message with its file payload
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, messageSelect+` WHERE m.message_id = $1`, messageID))
	if err != nil {
		return nil, translate(err, "get message")
	}
	return msg, nil
}

// ListActive lists unexpired messages of a conversation in send order
func (r *MessageRepository) ListActive(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]*domain.Message, error) {
	query := messageSelect + `
		WHERE m.conversation_id = $1
		  AND (m.expires_at IS NULL OR m.expires_at > $2)
		ORDER BY m.sent_at ASC, m.message_id ASC
	`

	rows, err := r.pool.Query(ctx, query, conversationID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// GetFile retrieves file metadata by file ID
func (r *MessageRepository) GetFile(ctx context.Context, fileID uuid.UUID) (*domain.FileMessage, error) {
	query := `
		SELECT file_id, message_id, storage_key, file_name, mime_type, size_bytes, hash, uploaded_at
		FROM file_messages
		WHERE file_id = $1
	`

	f := &domain.FileMessage{}
	err := r.pool.QueryRow(ctx, query, fileID).Scan(
		&f.FileID,
		&f.MessageID,
		&f.StorageKey,
		&f.FileName,
		&f.MimeType,
		&f.SizeBytes,
		&f.Hash,
		&f.UploadedAt,
	)
	if err != nil {
		return nil, translate(err, "get file")
	}
	return f, nil
}
