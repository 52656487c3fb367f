package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialInterval:  time.Millisecond,
		MaxInterval:      2 * time.Millisecond,
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
	}
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	b := New("test-retry", fastConfig())

	calls := 0
	err := b.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestExecute_PermanentErrorStopsRetries(t *testing.T) {
	b := New("test-permanent", fastConfig())
	sentinel := errors.New("missing")

	calls := 0
	err := b.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestExecute_OpensCircuitAfterThreshold(t *testing.T) {
	b := New("test-open", fastConfig())

	err := b.Execute(context.Background(), "op", func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, CircuitBreakerOpen, b.State())

	calls := 0
	err = b.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestExecute_HalfOpenRecovers(t *testing.T) {
	b := New("test-half-open", fastConfig())
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Execute(context.Background(), "op", func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.Equal(t, CircuitBreakerOpen, b.State())

	now = now.Add(2 * time.Hour)
	err := b.Execute(context.Background(), "op", func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}
