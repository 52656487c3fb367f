package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/resilience"
)

// ReceiptTracker creates and reads per-recipient receipts
type ReceiptTracker interface {
	FanOut(ctx context.Context, message *domain.Message, recipients []uuid.UUID) (int, error)
	ReceiptsFor(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) (map[uuid.UUID]domain.Receipt, error)
}

// AccessChecker decides whether a user may read a conversation
type AccessChecker interface {
	CheckReadAccess(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)
}

// Service handles the message ledger
type Service struct {
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	receipts         ReceiptTracker
	access           AccessChecker
	fanOutBreaker    *resilience.Breaker
	now              func() time.Time
}

// NewService creates a new chat service
func NewService(
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	receipts ReceiptTracker,
	access AccessChecker,
) *Service {
	return &Service{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		receipts:         receipts,
		access:           access,
		fanOutBreaker:    resilience.New("receipts", resilience.DefaultConfig()),
		now:              time.Now,
	}
}

// AppendInput contains message data
type AppendInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	ContentType    domain.ContentType // empty means text
	File           *domain.FileMeta
}

func validateAppend(input *AppendInput) (domain.ContentType, string, error) {
	kind := input.ContentType
	if kind == "" {
		kind = domain.ContentTypeText
	}
	if !kind.Valid() {
		return "", "", apperrors.InvalidInputError("Unknown content type")
	}

	content := strings.TrimSpace(input.Content)
	if !kind.CarriesFile() {
		if input.File != nil {
			return "", "", apperrors.InvalidInputError("Text messages cannot carry a file")
		}
		if content == "" {
			return "", "", apperrors.InvalidInputError("Message content is required")
		}
		return kind, input.Content, nil
	}

	if content == "" && input.File == nil {
		return "", "", apperrors.InvalidInputError("File messages need content or a file")
	}
	if content == "" {
		return kind, input.File.FileName, nil
	}
	return kind, input.Content, nil
}

// Append records a message, joins the sender to the conversation if needed
// and fans out pending receipts to the other participants
func (s *Service) Append(ctx context.Context, input *AppendInput) (*domain.Message, error) {
	kind, content, err := validateAppend(input)
	if err != nil {
		return nil, err
	}

	conv, err := s.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		return nil, notFoundOr(err, "Conversation")
	}
	sender, err := s.userRepo.GetByID(ctx, input.SenderID)
	if err != nil {
		return nil, notFoundOr(err, "User")
	}

	if err := s.joinSender(ctx, conv, sender.UserID); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	expiresAt := now.Add(sender.MessageTTL())
	message := &domain.Message{
		MessageID:      uuid.New(),
		ConversationID: conv.ConversationID,
		SenderID:       sender.UserID,
		Content:        content,
		ContentType:    kind,
		SentAt:         now,
		ExpiresAt:      &expiresAt,
	}
	if input.File != nil {
		message.File = &domain.FileMessage{
			FileID:     uuid.New(),
			MessageID:  message.MessageID,
			StorageKey: input.File.StorageKey,
			FileName:   input.File.FileName,
			MimeType:   input.File.MimeType,
			SizeBytes:  input.File.SizeBytes,
			Hash:       input.File.Hash,
			UploadedAt: now,
		}
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	metrics.ChatMessageAppendedTotal.WithLabelValues(string(kind)).Inc()

	s.fanOut(ctx, message)
	return message, nil
}

// joinSender adds the sender as participant if they are not one yet.
// Only groups enforce the member limit.
func (s *Service) joinSender(ctx context.Context, conv *domain.Conversation, senderID uuid.UUID) error {
	limit := 0
	if conv.IsGroup() {
		limit = conv.Limit()
	}

	joined, err := s.conversationRepo.EnsureParticipant(ctx, conv.ConversationID, senderID, limit, s.now())
	switch {
	case err == nil:
		if joined {
			logger.FromContext(ctx).Info("Sender joined conversation",
				zap.String("conversation_id", conv.ConversationID.String()),
				zap.String("user_id", senderID.String()))
		}
		return nil
	case errors.Is(err, repository.ErrCapacity):
		metrics.ChatMembershipRejectedTotal.WithLabelValues("capacity").Inc()
		return apperrors.GroupFullError(limit)
	default:
		return apperrors.StorageFailure(err)
	}
}

// fanOut never fails the append: the message is committed already
func (s *Service) fanOut(ctx context.Context, message *domain.Message) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx).With(
		zap.String("message_id", message.MessageID.String()),
		zap.String("conversation_id", message.ConversationID.String()))

	// Membership is read once; retries reuse the same recipients
	var recipients []uuid.UUID
	err := s.fanOutBreaker.Execute(ctx, "fan_out", func(ctx context.Context) error {
		if recipients == nil {
			participants, err := s.conversationRepo.GetParticipants(ctx, message.ConversationID)
			if err != nil {
				return err
			}
			recipients = make([]uuid.UUID, 0, len(participants))
			for _, p := range participants {
				recipients = append(recipients, p.UserID)
			}
		}

		_, err := s.receipts.FanOut(ctx, message, recipients)
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		metrics.ChatFanOutFailedTotal.Inc()
		log.Error("Receipt fan-out failed", zap.Error(err))
	}
}

// ListActive returns the conversation's unexpired messages in send order
func (s *Service) ListActive(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, notFoundOr(err, "Conversation")
	}

	messages, err := s.messageRepo.ListActive(ctx, conversationID, s.now())
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	return messages, nil
}

// ListActiveForUser returns active messages with the requester's receipt attached
func (s *Service) ListActiveForUser(ctx context.Context, conversationID, requesterID uuid.UUID) ([]*domain.Message, error) {
	if _, err := s.access.CheckReadAccess(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	messages, err := s.ListActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(messages))
	for _, m := range messages {
		if m.SenderID != requesterID {
			ids = append(ids, m.MessageID)
		}
	}
	receipts, err := s.receipts.ReceiptsFor(ctx, requesterID, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		if rc, ok := receipts[m.MessageID]; ok {
			rc := rc
			m.Receipt = &rc
		}
	}
	return messages, nil
}

// FileForUser returns file metadata when the requester may read the message that carries it
func (s *Service) FileForUser(ctx context.Context, fileID, requesterID uuid.UUID) (*domain.FileMessage, error) {
	file, err := s.messageRepo.GetFile(ctx, fileID)
	if err != nil {
		return nil, notFoundOr(err, "File")
	}

	message, err := s.messageRepo.GetByID(ctx, file.MessageID)
	if err != nil {
		return nil, notFoundOr(err, "File")
	}
	if !message.ActiveAt(s.now()) {
		return nil, apperrors.NotFoundError("File")
	}

	if _, err := s.access.CheckReadAccess(ctx, message.ConversationID, requesterID); err != nil {
		return nil, err
	}
	return file, nil
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFoundError(resource)
	}
	return apperrors.StorageFailure(err)
}
