package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// ConversationType distinguishes direct pairs from groups
type ConversationType string

const (
	ConversationTypeDirect ConversationType = "one_to_one"
	ConversationTypeGroup  ConversationType = "group"
)

// GroupPrivacy governs who may add members to a group
type GroupPrivacy string

const (
	PrivacyPublic GroupPrivacy = "public"
	PrivacyInvite GroupPrivacy = "invite"
	PrivacyClosed GroupPrivacy = "closed" // only the admin adds members
)

// Valid reports whether p is a known privacy level
func (p GroupPrivacy) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyInvite, PrivacyClosed:
		return true
	}
	return false
}

// Conversation represents conversation metadata
// Maps to CockroachDB conversations table
type Conversation struct {
	ConversationID uuid.UUID        `json:"conversation_id" db:"conversation_id"`
	Type           ConversationType `json:"type" db:"type"`
	Name           *string          `json:"name,omitempty" db:"name"`               // group only
	Description    *string          `json:"description,omitempty" db:"description"` // group only
	Privacy        *GroupPrivacy    `json:"privacy,omitempty" db:"privacy"`         // group only
	MemberLimit    *int             `json:"member_limit,omitempty" db:"member_limit"`
	AdminID        *uuid.UUID       `json:"admin_id,omitempty" db:"admin_id"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// IsGroup reports whether the conversation is a group
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationTypeGroup
}

// IsAdmin reports whether userID administers the group
func (c *Conversation) IsAdmin(userID uuid.UUID) bool {
	return c.AdminID != nil && *c.AdminID == userID
}

// PrivacyLevel returns the group privacy, defaulting to public
func (c *Conversation) PrivacyLevel() GroupPrivacy {
	if c.Privacy == nil {
		return PrivacyPublic
	}
	return *c.Privacy
}

// Limit returns the member limit, or 0 when the conversation has none
func (c *Conversation) Limit() int {
	if c.MemberLimit == nil {
		return 0
	}
	return *c.MemberLimit
}

// Participant represents a user's membership in a conversation
// Maps to CockroachDB participants table
type Participant struct {
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Username       string    `json:"username,omitempty" db:"username"` // joined from users
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
}

// DirectPair is the canonical (ordered) key of a one-to-one conversation
type DirectPair struct {
	Low  uuid.UUID
	High uuid.UUID
}

// NewDirectPair orders two user IDs so that {a,b} and {b,a} map to the same pair
func NewDirectPair(a, b uuid.UUID) DirectPair {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return DirectPair{Low: a, High: b}
	}
	return DirectPair{Low: b, High: a}
}

// ConversationView is a conversation with its participants and active messages attached
type ConversationView struct {
	Conversation
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
}
