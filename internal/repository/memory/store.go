// Package memory implements the repository interfaces in process memory.
// It backs STORE_DRIVER=memory and the service tests. A single mutex guards
// all tables, which gives every operation the atomicity the SQL store gets
// from transactions and constraints.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
)

type receiptKey struct {
	messageID   uuid.UUID
	recipientID uuid.UUID
}

// Store holds all tables
type Store struct {
	mu sync.RWMutex

	users     map[uuid.UUID]*domain.User
	usernames map[string]uuid.UUID

	conversations map[uuid.UUID]*domain.Conversation
	pairs         map[domain.DirectPair]uuid.UUID
	participants  map[uuid.UUID]map[uuid.UUID]time.Time // conversation -> user -> joined

	messages       map[uuid.UUID]*domain.Message
	byConversation map[uuid.UUID][]uuid.UUID
	files          map[uuid.UUID]*domain.FileMessage

	receipts map[receiptKey]*domain.Receipt
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:          make(map[uuid.UUID]*domain.User),
		usernames:      make(map[string]uuid.UUID),
		conversations:  make(map[uuid.UUID]*domain.Conversation),
		pairs:          make(map[domain.DirectPair]uuid.UUID),
		participants:   make(map[uuid.UUID]map[uuid.UUID]time.Time),
		messages:       make(map[uuid.UUID]*domain.Message),
		byConversation: make(map[uuid.UUID][]uuid.UUID),
		files:          make(map[uuid.UUID]*domain.FileMessage),
		receipts:       make(map[receiptKey]*domain.Receipt),
	}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	return &cp
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	if m.File != nil {
		f := *m.File
		cp.File = &f
	}
	cp.Receipt = nil
	return &cp
}
