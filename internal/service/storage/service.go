package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
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
	"chatcore-backend/pkg/sanitize"
)

// blockedExtensions are executable or archive formats that are never accepted
var blockedExtensions = map[string]bool{
	"exe": true, "bat": true, "cmd": true, "com": true, "scr": true,
	"vbs": true, "js": true, "jar": true, "zip": true,
}

var kindByExtension = map[string]domain.ContentType{
	"jpg": domain.ContentTypeImage, "jpeg": domain.ContentTypeImage, "png": domain.ContentTypeImage,
	"gif": domain.ContentTypeImage, "webp": domain.ContentTypeImage,

	"mp4": domain.ContentTypeVideo, "avi": domain.ContentTypeVideo, "mov": domain.ContentTypeVideo,
	"mkv": domain.ContentTypeVideo, "webm": domain.ContentTypeVideo, "flv": domain.ContentTypeVideo,
	"wmv": domain.ContentTypeVideo,

	"mp3": domain.ContentTypeAudio, "wav": domain.ContentTypeAudio, "aac": domain.ContentTypeAudio,
	"flac": domain.ContentTypeAudio, "m4a": domain.ContentTypeAudio, "wma": domain.ContentTypeAudio,
	"ogg": domain.ContentTypeAudio,
}

// Service handles content-addressed file storage
type Service struct {
	blobs   repository.BlobStore
	maxSize int64
}

// NewService creates a new storage service. maxSize <= 0 uses the 1 GiB default.
func NewService(blobs repository.BlobStore, maxSize int64) *Service {
	if maxSize <= 0 {
		maxSize = constants.MaxFileSize
	}
	return &Service{
		blobs:   blobs,
		maxSize: maxSize,
	}
}

// StoredBlob describes content written to the blob store
type StoredBlob struct {
	Key         string
	FileName    string
	Hash        string
	Size        int64
	MimeType    string
	ContentType domain.ContentType
}

// Meta converts the stored blob into the metadata attached to a file message
func (b *StoredBlob) Meta() *domain.FileMeta {
	return &domain.FileMeta{
		StorageKey: b.Key,
		FileName:   b.FileName,
		MimeType:   b.MimeType,
		SizeBytes:  b.Size,
		Hash:       b.Hash,
	}
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// Classify maps a filename to a message content type by extension
func Classify(name string) domain.ContentType {
	if kind, ok := kindByExtension[extension(name)]; ok {
		return kind
	}
	return domain.ContentTypeFile
}

// MimeType guesses a MIME type from the filename
func MimeType(name string) string {
	if ext := path.Ext(name); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

// ResolveMimeType prefers the client's declared type. An empty, malformed or
// generic octet-stream declaration falls back to the filename guess.
func ResolveMimeType(declared, name string) string {
	mediaType, params, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "application/octet-stream" {
		return MimeType(name)
	}
	return mime.FormatMediaType(mediaType, params)
}

// ValidatePayload checks name and size before anything is read or looked up.
// It returns the sanitized filename.
func (s *Service) ValidatePayload(originalName string, size int64) (string, error) {
	name := sanitize.SanitizeFilename(originalName)
	if strings.TrimSpace(name) == "" {
		metrics.UploadRejectedTotal.WithLabelValues("name").Inc()
		return "", apperrors.InvalidInputError("File name is required")
	}
	if blockedExtensions[extension(name)] {
		metrics.UploadRejectedTotal.WithLabelValues("extension").Inc()
		return "", apperrors.InvalidInputError(fmt.Sprintf("File type .%s is not allowed", extension(name)))
	}
	if size < 0 {
		metrics.UploadRejectedTotal.WithLabelValues("size").Inc()
		return "", apperrors.InvalidInputError("File size is invalid")
	}
	if size > s.maxSize {
		metrics.UploadRejectedTotal.WithLabelValues("size").Inc()
		return "", apperrors.PayloadTooLargeError(s.maxSize)
	}
	return name, nil
}

// Key builds the blob key for content with the given hash
func Key(conversationID uuid.UUID, hash, fileName string) string {
	return fmt.Sprintf("%s/%s/%s_%s", constants.UploadKeyPrefix, conversationID, hash, sanitize.KeySafeFilename(fileName))
}

// Store hashes r and writes it under a content-addressed key. Identical content overwrites itself.
// declaredType is the MIME type sent by the client and may be empty.
func (s *Service) Store(ctx context.Context, conversationID uuid.UUID, originalName, declaredType string, size int64, r io.ReadSeeker) (*StoredBlob, error) {
	name, err := s.ValidatePayload(originalName, size)
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	n, err := io.Copy(hasher, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, apperrors.StorageFailure(fmt.Errorf("failed to hash upload: %w", err))
	}
	if n > s.maxSize {
		metrics.UploadRejectedTotal.WithLabelValues("size").Inc()
		return nil, apperrors.PayloadTooLargeError(s.maxSize)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, apperrors.StorageFailure(fmt.Errorf("failed to rewind upload: %w", err))
	}

	blob := &StoredBlob{
		FileName:    name,
		Hash:        hex.EncodeToString(hasher.Sum(nil)),
		Size:        n,
		MimeType:    ResolveMimeType(declaredType, name),
		ContentType: Classify(name),
	}
	blob.Key = Key(conversationID, blob.Hash, name)

	if err := s.blobs.Put(ctx, blob.Key, r, n, blob.MimeType); err != nil {
		logger.FromContext(ctx).Error("Failed to store blob",
			zap.String("key", blob.Key),
			zap.Error(err))
		return nil, apperrors.StorageFailure(err)
	}

	metrics.UploadSizeBytes.Observe(float64(n))
	return blob, nil
}

// Retrieve opens stored content by key
func (s *Service) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("File content")
		}
		return nil, apperrors.StorageFailure(err)
	}
	return rc, nil
}

// Verify re-hashes stored content and compares it with expectedHash
func (s *Service) Verify(ctx context.Context, key, expectedHash string) (bool, error) {
	rc, err := s.Retrieve(ctx, key)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, rc); err != nil {
		return false, apperrors.StorageFailure(fmt.Errorf("failed to read blob: %w", err))
	}
	return strings.EqualFold(hex.EncodeToString(hasher.Sum(nil)), expectedHash), nil
}

// PresignDownload returns a time-limited link to a file when the blob store supports it
func (s *Service) PresignDownload(ctx context.Context, file *domain.FileMessage, expiry time.Duration) (*domain.FileDownloadURLResponse, error) {
	signer, ok := s.blobs.(repository.URLSigner)
	if !ok {
		return nil, apperrors.ServiceUnavailableError("Download links are not supported by this blob store")
	}

	u, err := signer.PresignGet(ctx, file.StorageKey, file.FileName, expiry)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	return &domain.FileDownloadURLResponse{
		DownloadURL: u,
		FileName:    file.FileName,
		MimeType:    file.MimeType,
		SizeBytes:   file.SizeBytes,
		ExpiresAt:   time.Now().Add(expiry),
	}, nil
}
