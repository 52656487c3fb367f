package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

// Reasons a seeded group member was not added
const (
	SkipUnknownUser = "unknown_user"
	SkipCapacity    = "capacity"
	SkipDuplicate   = "duplicate"
)

// Service handles conversation business logic
type Service struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	messageRepo      repository.MessageRepository
	now              func() time.Time
}

// NewService creates a new conversation service
func NewService(
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
) *Service {
	return &Service{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		messageRepo:      messageRepo,
		now:              time.Now,
	}
}

// FindOrCreateDirect returns the one-to-one conversation of two users, creating it on first use
func (s *Service) FindOrCreateDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	if userA == userB {
		return nil, apperrors.InvalidInputError("Cannot start a conversation with yourself")
	}
	for _, id := range []uuid.UUID{userA, userB} {
		if err := s.requireUser(ctx, id); err != nil {
			return nil, err
		}
	}

	pair := domain.NewDirectPair(userA, userB)
	existing, err := s.conversationRepo.GetDirectByPair(ctx, pair)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.StorageFailure(err)
	}

	conv := &domain.Conversation{
		ConversationID: uuid.New(),
		Type:           domain.ConversationTypeDirect,
		CreatedAt:      s.now(),
	}
	if err := s.conversationRepo.CreateDirect(ctx, conv, pair); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.StorageFailure(err)
		}
		// Lost the race on the pair key; the winner's conversation is the answer.
		winner, err := s.conversationRepo.GetDirectByPair(ctx, pair)
		if err != nil {
			return nil, apperrors.StorageFailure(err)
		}
		return winner, nil
	}

	metrics.ChatDirectConversationsCreatedTotal.Inc()
	return conv, nil
}

// CreateGroupInput contains group creation data
type CreateGroupInput struct {
	CreatorID   uuid.UUID
	Name        string
	Description string
	Privacy     domain.GroupPrivacy // empty means public
	MemberLimit int                 // 0 means the default limit
	MemberIDs   []uuid.UUID
}

// SkippedMember is a seeded member that could not be added
type SkippedMember struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

// CreateGroupOutput contains the created group and the seeded members that were skipped
type CreateGroupOutput struct {
	Conversation *domain.Conversation `json:"conversation"`
	Skipped      []SkippedMember      `json:"skipped"`
}

func validLimit(limit int) bool {
	for _, allowed := range constants.AllowedMemberLimits {
		if limit == allowed {
			return true
		}
	}
	return false
}

// CreateGroup creates a group administered by its creator and seeds it best-effort
func (s *Service) CreateGroup(ctx context.Context, input *CreateGroupInput) (*CreateGroupOutput, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.InvalidInputError("Group name is required")
	}

	privacy := input.Privacy
	if privacy == "" {
		privacy = domain.PrivacyPublic
	}
	if !privacy.Valid() {
		return nil, apperrors.InvalidInputError("Privacy must be one of public, invite, closed")
	}

	limit := input.MemberLimit
	if limit == 0 {
		limit = constants.DefaultMemberLimit
	}
	if !validLimit(limit) {
		return nil, apperrors.InvalidInputError("Member limit must be one of 5, 10, 15, 50")
	}

	if err := s.requireUser(ctx, input.CreatorID); err != nil {
		return nil, err
	}

	adminID := input.CreatorID
	conv := &domain.Conversation{
		ConversationID: uuid.New(),
		Type:           domain.ConversationTypeGroup,
		Name:           &name,
		Privacy:        &privacy,
		MemberLimit:    &limit,
		AdminID:        &adminID,
		CreatedAt:      s.now(),
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		conv.Description = &desc
	}

	if err := s.conversationRepo.CreateGroup(ctx, conv); err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	metrics.ChatGroupsCreatedTotal.WithLabelValues(string(privacy)).Inc()

	skipped := []SkippedMember{}
	for _, memberID := range input.MemberIDs {
		reason, err := s.seedMember(ctx, conv, memberID)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			skipped = append(skipped, SkippedMember{UserID: memberID, Reason: reason})
		}
	}

	if len(skipped) > 0 {
		logger.FromContext(ctx).Info("Group created with skipped members",
			zap.String("conversation_id", conv.ConversationID.String()),
			zap.Int("skipped", len(skipped)))
	}

	return &CreateGroupOutput{Conversation: conv, Skipped: skipped}, nil
}

// seedMember returns a skip reason, or "" when the member was added
func (s *Service) seedMember(ctx context.Context, conv *domain.Conversation, userID uuid.UUID) (string, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SkipUnknownUser, nil
		}
		return "", apperrors.StorageFailure(err)
	}

	err := s.conversationRepo.AddParticipant(ctx, conv.ConversationID, userID, conv.Limit(), s.now())
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, repository.ErrCapacity):
		return SkipCapacity, nil
	case errors.Is(err, repository.ErrConflict):
		return SkipDuplicate, nil
	default:
		return "", apperrors.StorageFailure(err)
	}
}

// AddMember adds userID to a group on behalf of requesterID
func (s *Service) AddMember(ctx context.Context, conversationID, requesterID, userID uuid.UUID) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		metrics.ChatMembershipRejectedTotal.WithLabelValues("not_group").Inc()
		return apperrors.InvalidStateError("Members can only be added to groups")
	}
	if conv.PrivacyLevel() == domain.PrivacyClosed && !conv.IsAdmin(requesterID) {
		metrics.ChatMembershipRejectedTotal.WithLabelValues("forbidden").Inc()
		return apperrors.ForbiddenError("Only the group admin can add members to a closed group")
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}

	err = s.conversationRepo.AddParticipant(ctx, conversationID, userID, conv.Limit(), s.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrCapacity):
		metrics.ChatMembershipRejectedTotal.WithLabelValues("capacity").Inc()
		return apperrors.GroupFullError(conv.Limit())
	case errors.Is(err, repository.ErrConflict):
		metrics.ChatMembershipRejectedTotal.WithLabelValues("duplicate").Inc()
		return apperrors.AlreadyMemberError()
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFoundError("Conversation")
	default:
		return apperrors.StorageFailure(err)
	}
}

// RemoveMember removes userID from a group; only the admin may do so. Removing a non-member is a no-op.
func (s *Service) RemoveMember(ctx context.Context, conversationID, requesterID, userID uuid.UUID) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return apperrors.InvalidStateError("Members can only be removed from groups")
	}
	if !conv.IsAdmin(requesterID) {
		metrics.ChatMembershipRejectedTotal.WithLabelValues("forbidden").Inc()
		return apperrors.ForbiddenError("Only the group admin can remove members")
	}

	removed, err := s.conversationRepo.RemoveParticipant(ctx, conversationID, userID)
	if err != nil {
		return apperrors.StorageFailure(err)
	}
	if removed {
		logger.FromContext(ctx).Info("Member removed",
			zap.String("conversation_id", conversationID.String()),
			zap.String("user_id", userID.String()))
	}
	return nil
}

// Lookup returns a conversation by ID without any access check
func (s *Service) Lookup(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	return s.getConversation(ctx, conversationID)
}

// CheckReadAccess returns the conversation when userID may read it.
// Participants may always read; public groups are readable by anyone.
func (s *Service) CheckReadAccess(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	member, err := s.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	if member {
		return conv, nil
	}
	if conv.IsGroup() && conv.PrivacyLevel() == domain.PrivacyPublic {
		return conv, nil
	}
	return nil, apperrors.ForbiddenError("Not a participant of this conversation")
}

// Get returns a conversation with participants and active messages
func (s *Service) Get(ctx context.Context, conversationID, requesterID uuid.UUID) (*domain.ConversationView, error) {
	conv, err := s.CheckReadAccess(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, conv)
}

// ListForUser returns the user's conversations, newest first, with participants and active messages
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationView, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	conversations, err := s.conversationRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}

	views := make([]*domain.ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		v, err := s.view(ctx, conv)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Participants lists the current members of a conversation
func (s *Service) Participants(ctx context.Context, conversationID uuid.UUID) ([]domain.Participant, error) {
	participants, err := s.conversationRepo.GetParticipants(ctx, conversationID)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	return participants, nil
}

func (s *Service) view(ctx context.Context, conv *domain.Conversation) (*domain.ConversationView, error) {
	participants, err := s.Participants(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}

	active, err := s.messageRepo.ListActive(ctx, conv.ConversationID, s.now())
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	messages := make([]domain.Message, 0, len(active))
	for _, m := range active {
		messages = append(messages, *m)
	}

	return &domain.ConversationView{
		Conversation: *conv,
		Participants: participants,
		Messages:     messages,
	}, nil
}

func (s *Service) getConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("Conversation")
		}
		return nil, apperrors.StorageFailure(err)
	}
	return conv, nil
}

func (s *Service) requireUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFoundError("User")
		}
		return apperrors.StorageFailure(err)
	}
	return nil
}
