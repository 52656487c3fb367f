package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is the kind of a message payload
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeFile  ContentType = "file"
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
	ContentTypeAudio ContentType = "audio"
)

// Valid reports whether c is a known content type
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeText, ContentTypeFile, ContentTypeImage, ContentTypeVideo, ContentTypeAudio:
		return true
	}
	return false
}

// CarriesFile reports whether messages of this type reference an uploaded file
func (c ContentType) CarriesFile() bool {
	return c != ContentTypeText
}

// Message represents a chat message entity
// Maps to CockroachDB messages table
type Message struct {
	MessageID      uuid.UUID    `json:"message_id" db:"message_id"`
	ConversationID uuid.UUID    `json:"conversation_id" db:"conversation_id"`
	SenderID       uuid.UUID    `json:"sender_id" db:"sender_id"`
	Content        string       `json:"content" db:"content"` // text, or the original filename
	ContentType    ContentType  `json:"content_type" db:"content_type"`
	SentAt         time.Time    `json:"sent_at" db:"sent_at"`
	Edited         bool         `json:"edited" db:"edited"`
	EditedAt       *time.Time   `json:"edited_at,omitempty" db:"edited_at"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty" db:"expires_at"`
	File           *FileMessage `json:"file,omitempty"`
	Receipt        *Receipt     `json:"receipt,omitempty"` // requester's receipt, when listed for a user
}

// ActiveAt reports whether the message is still visible at now
func (m *Message) ActiveAt(now time.Time) bool {
	return m.ExpiresAt == nil || m.ExpiresAt.After(now)
}
