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

// ConversationRepository is the in-memory ConversationRepository
type ConversationRepository struct {
	s *Store
}

// NewConversationRepository creates a ConversationRepository over s
func NewConversationRepository(s *Store) *ConversationRepository {
	return &ConversationRepository{s: s}
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(_ context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyConversation(c), nil
}

// GetDirectByPair retrieves the one-to-one conversation of a canonical user pair
func (r *ConversationRepository) GetDirectByPair(_ context.Context, pair domain.DirectPair) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.pairs[pair]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyConversation(r.s.conversations[id]), nil
}

// CreateDirect creates a one-to-one conversation with both participants
func (r *ConversationRepository) CreateDirect(_ context.Context, conv *domain.Conversation, pair domain.DirectPair) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.pairs[pair]; exists {
		return fmt.Errorf("failed to create direct pair: %w", repository.ErrConflict)
	}
	if err := r.insertLocked(conv); err != nil {
		return err
	}
	r.s.pairs[pair] = conv.ConversationID
	r.s.participants[conv.ConversationID][pair.Low] = conv.CreatedAt
	r.s.participants[conv.ConversationID][pair.High] = conv.CreatedAt
	return nil
}

// CreateGroup creates a group conversation with its admin as first participant
func (r *ConversationRepository) CreateGroup(_ context.Context, conv *domain.Conversation) error {
	if conv.AdminID == nil {
		return fmt.Errorf("failed to create group: admin is required")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.insertLocked(conv); err != nil {
		return err
	}
	r.s.participants[conv.ConversationID][*conv.AdminID] = conv.CreatedAt
	return nil
}

func (r *ConversationRepository) insertLocked(conv *domain.Conversation) error {
	if _, exists := r.s.conversations[conv.ConversationID]; exists {
		return fmt.Errorf("failed to create conversation: %w", repository.ErrConflict)
	}
	r.s.conversations[conv.ConversationID] = copyConversation(conv)
	r.s.participants[conv.ConversationID] = make(map[uuid.UUID]time.Time)
	return nil
}

// addLocked mirrors the SQL store: capacity is checked before membership
func (r *ConversationRepository) addLocked(conversationID, userID uuid.UUID, limit int, joinedAt time.Time, allowExisting bool) (bool, error) {
	members, ok := r.s.participants[conversationID]
	if !ok {
		return false, repository.ErrNotFound
	}

	_, exists := members[userID]
	if exists && allowExisting {
		return false, nil
	}
	if limit > 0 && len(members) >= limit {
		return false, repository.ErrCapacity
	}
	if exists {
		return false, fmt.Errorf("failed to add participant: %w", repository.ErrConflict)
	}

	members[userID] = joinedAt
	return true, nil
}

// AddParticipant adds a user under the member limit; limit <= 0 means unlimited
func (r *ConversationRepository) AddParticipant(_ context.Context, conversationID, userID uuid.UUID, limit int, joinedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, err := r.addLocked(conversationID, userID, limit, joinedAt, false)
	return err
}

// EnsureParticipant adds a user unless already a member
func (r *ConversationRepository) EnsureParticipant(_ context.Context, conversationID, userID uuid.UUID, limit int, joinedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.addLocked(conversationID, userID, limit, joinedAt, true)
}

// RemoveParticipant deletes a membership; reports whether one was removed
func (r *ConversationRepository) RemoveParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members, ok := r.s.participants[conversationID]
	if !ok {
		return false, nil
	}
	if _, exists := members[userID]; !exists {
		return false, nil
	}
	delete(members, userID)
	return true, nil
}

// IsParticipant checks if a user is a participant of a conversation
func (r *ConversationRepository) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.participants[conversationID][userID]
	return ok, nil
}

// GetParticipants lists participants with usernames, in join order
func (r *ConversationRepository) GetParticipants(_ context.Context, conversationID uuid.UUID) ([]domain.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	participants := []domain.Participant{}
	for userID, joinedAt := range r.s.participants[conversationID] {
		p := domain.Participant{
			ConversationID: conversationID,
			UserID:         userID,
			JoinedAt:       joinedAt,
		}
		if u, ok := r.s.users[userID]; ok {
			p.Username = u.Username
		}
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].Username < participants[j].Username
	})
	return participants, nil
}

// ListForUser lists the user's conversations, newest first
func (r *ConversationRepository) ListForUser(_ context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var conversations []*domain.Conversation
	for convID, members := range r.s.participants {
		if _, ok := members[userID]; ok {
			conversations = append(conversations, copyConversation(r.s.conversations[convID]))
		}
	}
	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
		}
		return conversations[i].ConversationID.String() < conversations[j].ConversationID.String()
	})
	return conversations, nil
}
