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

// MessageRepository is the in-memory MessageRepository
type MessageRepository struct {
	s *Store
}

// NewMessageRepository creates a MessageRepository over s
func NewMessageRepository(s *Store) *MessageRepository {
	return &MessageRepository{s: s}
}

// Create inserts a message and its file payload atomically
func (r *MessageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.conversations[msg.ConversationID]; !ok {
		return fmt.Errorf("failed to create message: conversation %s: %w", msg.ConversationID, repository.ErrNotFound)
	}
	if _, exists := r.s.messages[msg.MessageID]; exists {
		return fmt.Errorf("failed to create message: %w", repository.ErrConflict)
	}
	if msg.File != nil {
		if _, exists := r.s.files[msg.File.FileID]; exists {
			return fmt.Errorf("failed to create file message: %w", repository.ErrConflict)
		}
	}

	stored := copyMessage(msg)
	if stored.File != nil {
		stored.File.MessageID = msg.MessageID
		r.s.files[stored.File.FileID] = stored.File
	}
	r.s.messages[msg.MessageID] = stored
	r.s.byConversation[msg.ConversationID] = append(r.s.byConversation[msg.ConversationID], msg.MessageID)
	return nil
}

// GetByID retrieves a message with its file payload
func (r *MessageRepository) GetByID(_ context.Context, messageID uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.messages[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyMessage(m), nil
}

// ListActive lists unexpired messages of a conversation in send order
func (r *MessageRepository) ListActive(_ context.Context, conversationID uuid.UUID, now time.Time) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	messages := []*domain.Message{}
	for _, id := range r.s.byConversation[conversationID] {
		m := r.s.messages[id]
		if m.ActiveAt(now) {
			messages = append(messages, copyMessage(m))
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages, nil
}

// GetFile retrieves file metadata by file ID
func (r *MessageRepository) GetFile(_ context.Context, fileID uuid.UUID) (*domain.FileMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	f, ok := r.s.files[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}
