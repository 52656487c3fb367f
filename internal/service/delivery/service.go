package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/metrics"
)

// Service tracks per-recipient delivery and read state
type Service struct {
	receiptRepo repository.ReceiptRepository
	messageRepo repository.MessageRepository
	now         func() time.Time
}

// NewService creates a new delivery service
func NewService(receiptRepo repository.ReceiptRepository, messageRepo repository.MessageRepository) *Service {
	return &Service{
		receiptRepo: receiptRepo,
		messageRepo: messageRepo,
		now:         time.Now,
	}
}

// timestamp is truncated to what the database stores so returned receipts compare equal
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// FanOut creates a pending receipt for every recipient except the sender.
// Existing receipts are left alone; the number created is returned.
func (s *Service) FanOut(ctx context.Context, message *domain.Message, recipients []uuid.UUID) (int, error) {
	seen := make(map[uuid.UUID]struct{}, len(recipients))
	targets := make([]uuid.UUID, 0, len(recipients))
	for _, id := range recipients {
		if id == message.SenderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		return 0, nil
	}

	created, err := s.receiptRepo.CreateBatch(ctx, message.MessageID, targets)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, apperrors.NotFoundError("Message")
		}
		return 0, apperrors.StorageFailure(err)
	}

	metrics.ChatReceiptsCreatedTotal.Add(float64(created))
	return created, nil
}

// MarkRead marks a receipt delivered and read. The first read wins: later calls return the stored timestamps.
func (s *Service) MarkRead(ctx context.Context, messageID, userID uuid.UUID) (*domain.Receipt, error) {
	at := s.timestamp()

	receipt, err := s.receiptRepo.MarkRead(ctx, messageID, userID, at)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("Receipt")
		}
		return nil, apperrors.StorageFailure(err)
	}

	if receipt.ReadAt != nil && receipt.ReadAt.Equal(at) {
		metrics.ChatReceiptsReadTotal.Inc()
	}
	return receipt, nil
}

// MarkConversationRead marks all of the user's unread receipts in a conversation
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	marked, err := s.receiptRepo.MarkConversationRead(ctx, conversationID, userID, s.timestamp())
	if err != nil {
		return 0, apperrors.StorageFailure(err)
	}
	metrics.ChatReceiptsReadTotal.Add(float64(marked))
	return marked, nil
}

// ListReceipts returns every receipt of a message. Only its sender may look.
func (s *Service) ListReceipts(ctx context.Context, messageID, requesterID uuid.UUID) ([]domain.Receipt, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("Message")
		}
		return nil, apperrors.StorageFailure(err)
	}
	if message.SenderID != requesterID {
		return nil, apperrors.ForbiddenError("Only the sender can view receipts")
	}

	receipts, err := s.receiptRepo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	return receipts, nil
}

// ReceiptsFor returns the user's receipts among messageIDs, keyed by message
func (s *Service) ReceiptsFor(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) (map[uuid.UUID]domain.Receipt, error) {
	if len(messageIDs) == 0 {
		return map[uuid.UUID]domain.Receipt{}, nil
	}
	receipts, err := s.receiptRepo.ListForRecipient(ctx, userID, messageIDs)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	return receipts, nil
}
