package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository/blob"
	apperrors "chatcore-backend/pkg/errors"
)

// Mocks
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, r, size, contentType)
	return args.Error(0)
}

func (m *MockBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type MockSigningBlobStore struct {
	MockBlobStore
}

func (m *MockSigningBlobStore) PresignGet(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, key, fileName, expiry)
	return args.String(0), args.Error(1)
}

func sha(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestClassify(t *testing.T) {
	cases := map[string]domain.ContentType{
		"photo.JPG":    domain.ContentTypeImage,
		"a.webp":       domain.ContentTypeImage,
		"clip.mkv":     domain.ContentTypeVideo,
		"movie.WMV":    domain.ContentTypeVideo,
		"song.flac":    domain.ContentTypeAudio,
		"voice.ogg":    domain.ContentTypeAudio,
		"report.pdf":   domain.ContentTypeFile,
		"no_extension": domain.ContentTypeFile,
	}
	for name, want := range cases {
		assert.Equal(t, want, Classify(name), name)
	}
}

func TestValidatePayload(t *testing.T) {
	service := NewService(blob.NewMemoryStore(), 100)

	for _, name := range []string{"virus.exe", "run.BAT", "x.cmd", "y.com", "s.scr", "v.vbs", "a.js", "b.jar", "c.zip"} {
		_, err := service.ValidatePayload(name, 1)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput), name)
	}

	_, err := service.ValidatePayload("   ", 1)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = service.ValidatePayload("big.bin", 101)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePayloadTooLarge))
	assert.True(t, apperrors.IsCapacityExceeded(err))

	name, err := service.ValidatePayload("../../etc/notes.txt", 100)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", name)
}

func TestStore_ContentAddressedKey(t *testing.T) {
	store := blob.NewMemoryStore()
	service := NewService(store, 0)
	ctx := context.Background()
	conversationID := uuid.New()

	stored, err := service.Store(ctx, conversationID, "my photo.png", "", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, sha("hello"), stored.Hash)
	assert.Equal(t, "uploads/"+conversationID.String()+"/"+sha("hello")+"_my_photo.png", stored.Key)
	assert.Equal(t, int64(5), stored.Size)
	assert.Equal(t, "image/png", stored.MimeType)
	assert.Equal(t, domain.ContentTypeImage, stored.ContentType)

	again, err := service.Store(ctx, conversationID, "my photo.png", "", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, stored.Key, again.Key)

	rc, err := service.Retrieve(ctx, stored.Key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	ok, err := service.Verify(ctx, stored.Key, stored.Hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.Verify(ctx, stored.Key, sha("other"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", ResolveMimeType("application/pdf", "report"))
	assert.Equal(t, "text/plain; charset=utf-8", ResolveMimeType("Text/Plain; charset=utf-8", "notes"))
	assert.Equal(t, "image/png", ResolveMimeType("", "a.png"))
	assert.Equal(t, "image/png", ResolveMimeType("application/octet-stream", "a.png"))
	assert.Equal(t, "application/octet-stream", ResolveMimeType("not a type", "no_extension"))
}

func TestStore_KeepsDeclaredMimeType(t *testing.T) {
	mockStore := new(MockBlobStore)
	service := NewService(mockStore, 0)

	mockStore.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.Anything, int64(3), "application/pdf").
		Return(nil)

	stored, err := service.Store(context.Background(), uuid.New(), "report", "application/pdf", 3, strings.NewReader("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", stored.MimeType)
	assert.Equal(t, domain.ContentTypeFile, stored.ContentType)
	mockStore.AssertExpectations(t)
}

func TestStore_RejectedBeforeStorage(t *testing.T) {
	mockStore := new(MockBlobStore)
	service := NewService(mockStore, 0)

	_, err := service.Store(context.Background(), uuid.New(), "virus.exe", "", 3, bytes.NewReader([]byte("bad")))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	mockStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_StreamLargerThanLimit(t *testing.T) {
	mockStore := new(MockBlobStore)
	service := NewService(mockStore, 4)

	_, err := service.Store(context.Background(), uuid.New(), "a.txt", "", 2, strings.NewReader("too long"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePayloadTooLarge))
	mockStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_BlobFailure(t *testing.T) {
	mockStore := new(MockBlobStore)
	service := NewService(mockStore, 0)

	mockStore.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.Anything, int64(3), mock.AnythingOfType("string")).
		Return(errors.New("bucket unreachable"))

	_, err := service.Store(context.Background(), uuid.New(), "a.txt", "", 3, strings.NewReader("abc"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorage))
	mockStore.AssertExpectations(t)
}

func TestRetrieve_Missing(t *testing.T) {
	service := NewService(blob.NewMemoryStore(), 0)

	_, err := service.Retrieve(context.Background(), "uploads/missing")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestPresignDownload(t *testing.T) {
	file := &domain.FileMessage{StorageKey: "uploads/k", FileName: "a.pdf", MimeType: "application/pdf", SizeBytes: 10}

	service := NewService(blob.NewMemoryStore(), 0)
	_, err := service.PresignDownload(context.Background(), file, time.Hour)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavail))

	signer := new(MockSigningBlobStore)
	signer.On("PresignGet", mock.Anything, "uploads/k", "a.pdf", time.Hour).Return("https://blobs/uploads/k?sig=1", nil)

	service = NewService(signer, 0)
	out, err := service.PresignDownload(context.Background(), file, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://blobs/uploads/k?sig=1", out.DownloadURL)
	assert.Equal(t, "a.pdf", out.FileName)
	signer.AssertExpectations(t)
}
