package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
)

// ReceiptRepository is the in-memory ReceiptRepository
type ReceiptRepository struct {
	s *Store
}

// NewReceiptRepository creates a ReceiptRepository over s
func NewReceiptRepository(s *Store) *ReceiptRepository {
	return &ReceiptRepository{s: s}
}

// CreateBatch inserts pending receipts, skipping pairs that already exist
func (r *ReceiptRepository) CreateBatch(_ context.Context, messageID uuid.UUID, recipientIDs []uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.messages[messageID]; !ok {
		return 0, repository.ErrNotFound
	}

	created := 0
	for _, recipientID := range recipientIDs {
		key := receiptKey{messageID: messageID, recipientID: recipientID}
		if _, exists := r.s.receipts[key]; exists {
			continue
		}
		r.s.receipts[key] = &domain.Receipt{MessageID: messageID, RecipientID: recipientID}
		created++
	}
	return created, nil
}

// Get retrieves the receipt of one recipient for one message
func (r *ReceiptRepository) Get(_ context.Context, messageID, recipientID uuid.UUID) (*domain.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rc, ok := r.s.receipts[receiptKey{messageID: messageID, recipientID: recipientID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rc
	return &cp, nil
}

func markLocked(rc *domain.Receipt, at time.Time) bool {
	if rc.Read {
		return false
	}
	ts := at
	rc.Delivered = true
	rc.DeliveredAt = &ts
	rc.Read = true
	rc.ReadAt = &ts
	return true
}

// MarkRead sets delivered and read together on first call; later calls keep the first timestamps
func (r *ReceiptRepository) MarkRead(_ context.Context, messageID, recipientID uuid.UUID, at time.Time) (*domain.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rc, ok := r.s.receipts[receiptKey{messageID: messageID, recipientID: recipientID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	markLocked(rc, at)
	cp := *rc
	return &cp, nil
}

// MarkConversationRead marks every unread receipt of the recipient in a conversation
func (r *ReceiptRepository) MarkConversationRead(_ context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	marked := 0
	for _, messageID := range r.s.byConversation[conversationID] {
		rc, ok := r.s.receipts[receiptKey{messageID: messageID, recipientID: recipientID}]
		if ok && markLocked(rc, at) {
			marked++
		}
	}
	return marked, nil
}

// ListByMessage lists all receipts of a message
func (r *ReceiptRepository) ListByMessage(_ context.Context, messageID uuid.UUID) ([]domain.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	receipts := []domain.Receipt{}
	for key, rc := range r.s.receipts {
		if key.messageID == messageID {
			receipts = append(receipts, *rc)
		}
	}
	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].RecipientID.String() < receipts[j].RecipientID.String()
	})
	return receipts, nil
}

// ListForRecipient returns the recipient's receipts for the given messages, keyed by message ID
func (r *ReceiptRepository) ListForRecipient(_ context.Context, recipientID uuid.UUID, messageIDs []uuid.UUID) (map[uuid.UUID]domain.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make(map[uuid.UUID]domain.Receipt, len(messageIDs))
	for _, messageID := range messageIDs {
		if rc, ok := r.s.receipts[receiptKey{messageID: messageID, recipientID: recipientID}]; ok {
			result[messageID] = *rc
		}
	}
	return result, nil
}
