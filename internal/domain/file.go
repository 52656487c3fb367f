package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileMessage is the file payload of a file-kind message
// Actual file content is stored in the blob store under StorageKey
// Maps to CockroachDB file_messages table
type FileMessage struct {
	FileID     uuid.UUID `json:"file_id" db:"file_id"`
	MessageID  uuid.UUID `json:"message_id" db:"message_id"`
	StorageKey string    `json:"-" db:"storage_key"` // internal, don't expose
	FileName   string    `json:"file_name" db:"file_name"`
	MimeType   string    `json:"mime_type" db:"mime_type"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	Hash       string    `json:"hash" db:"hash"` // hex sha256 of the content
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// FileMeta is what the ledger needs to attach a stored blob to a message
type FileMeta struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	Hash       string
}

// FileDownloadURLResponse contains a presigned download URL
type FileDownloadURLResponse struct {
	DownloadURL string    `json:"download_url"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}
