package domain

import (
	"time"

	"github.com/google/uuid"
)

// Receipt tracks delivery and read state of one message for one recipient
// Maps to CockroachDB delivery_receipts table
type Receipt struct {
	MessageID   uuid.UUID  `json:"message_id" db:"message_id"`
	RecipientID uuid.UUID  `json:"recipient_id" db:"recipient_id"`
	Delivered   bool       `json:"delivered" db:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	Read        bool       `json:"read" db:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`
}
