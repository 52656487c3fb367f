package repository

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("unique constraint violated")
	// ErrCapacity is returned when adding a participant would exceed the member limit
	ErrCapacity = errors.New("member limit reached")
)

// UserRepository persists identities
type UserRepository interface {
	// Create fails with ErrConflict when the username is taken
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// List orders by last activity, most recent first
	List(ctx context.Context) ([]*domain.User, error)
	// ListOnline returns users flagged online with activity at or after since
	ListOnline(ctx context.Context, since time.Time) ([]*domain.User, error)
	GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error)
	TouchActivity(ctx context.Context, userID uuid.UUID, at time.Time) error
	SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error
	UpdateAutoDeleteHours(ctx context.Context, userID uuid.UUID, hours int, at time.Time) error
}

// ConversationRepository persists conversations and their participants
type ConversationRepository interface {
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	GetDirectByPair(ctx context.Context, pair domain.DirectPair) (*domain.Conversation, error)
	// CreateDirect inserts the conversation, its pair key and both participants atomically.
	// It fails with ErrConflict when the pair already has a conversation.
	CreateDirect(ctx context.Context, conversation *domain.Conversation, pair domain.DirectPair) error
	// CreateGroup inserts the conversation and its admin as first participant atomically
	CreateGroup(ctx context.Context, conversation *domain.Conversation) error
	// AddParticipant counts and inserts under a lock on the conversation.
	// limit <= 0 means unlimited. Fails with ErrCapacity or ErrConflict.
	AddParticipant(ctx context.Context, conversationID, userID uuid.UUID, limit int, joinedAt time.Time) error
	// EnsureParticipant is AddParticipant that treats an existing membership as success
	EnsureParticipant(ctx context.Context, conversationID, userID uuid.UUID, limit int, joinedAt time.Time) (bool, error)
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	// GetParticipants orders by join time
	GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]domain.Participant, error)
	// ListForUser orders by creation time, newest first
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
}

// MessageRepository persists the ledger
type MessageRepository interface {
	// Create inserts the message and, when set, its File in one transaction
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	// ListActive returns messages not expired at now, ordered by sent time ascending
	ListActive(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]*domain.Message, error)
	GetFile(ctx context.Context, fileID uuid.UUID) (*domain.FileMessage, error)
}

// ReceiptRepository persists per-recipient delivery state
type ReceiptRepository interface {
	// CreateBatch skips pairs that already exist and returns how many rows were inserted
	CreateBatch(ctx context.Context, messageID uuid.UUID, recipientIDs []uuid.UUID) (int, error)
	Get(ctx context.Context, messageID, recipientID uuid.UUID) (*domain.Receipt, error)
	// MarkRead sets delivered and read at the given time unless already read,
	// then returns the stored receipt. ErrNotFound when no receipt exists.
	MarkRead(ctx context.Context, messageID, recipientID uuid.UUID, at time.Time) (*domain.Receipt, error)
	MarkConversationRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Receipt, error)
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, messageIDs []uuid.UUID) (map[uuid.UUID]domain.Receipt, error)
}

// PresenceCache mirrors online state for fast lookups
type PresenceCache interface {
	SetOnline(ctx context.Context, userID uuid.UUID, at time.Time) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	OnlineUserIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// BlobStore holds file content by key
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get fails with ErrNotFound when key is absent
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// URLSigner is implemented by blob stores that can hand out presigned download links
type URLSigner interface {
	PresignGet(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
}
