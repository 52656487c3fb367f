package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/repository"
)

func TestMemoryStore_PutGetExists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	exists, err := store.Exists(ctx, "uploads/a/b")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, "uploads/a/b", strings.NewReader("hello"), 5, "text/plain"))

	exists, err = store.Exists(ctx, "uploads/a/b")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Get(ctx, "uploads/a/b")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, store.PutCount())
}

func TestMemoryStore_GetMissingKey(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemoryStore_RejectsSizeMismatch(t *testing.T) {
	store := NewMemoryStore()

	err := store.Put(context.Background(), "k", strings.NewReader("abc"), 10, "")
	assert.Error(t, err)
	assert.Equal(t, 0, store.PutCount())
}
