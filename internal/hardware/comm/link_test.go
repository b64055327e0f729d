package comm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink_RetryWithTimeout(t *testing.T) {
	t.Run("succeeds after retries", func(t *testing.T) {
		l := NewLink("test", ConnectionConfig{RetryCount: 3, RetryInterval: time.Millisecond})
		calls := 0
		err := l.RetryWithTimeout(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("busy")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)

		stats := l.Stats()
		assert.Equal(t, uint64(1), stats.Transactions)
		assert.Equal(t, uint64(2), stats.Retries)
		assert.Zero(t, stats.Failures)
	})

	t.Run("gives up after retry count", func(t *testing.T) {
		l := NewLink("test", ConnectionConfig{RetryCount: 2, RetryInterval: time.Millisecond})
		boom := errors.New("timeout")
		calls := 0
		err := l.RetryWithTimeout(context.Background(), func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, l.GetLastError(), boom)
		assert.Equal(t, uint64(1), l.Stats().Failures)
	})

	t.Run("retry filter stops early", func(t *testing.T) {
		l := NewLink("test", ConnectionConfig{RetryCount: 5, RetryInterval: time.Millisecond})
		l.SetRetryFilter(func(error) bool { return false })
		calls := 0
		err := l.RetryWithTimeout(context.Background(), func() error {
			calls++
			return errors.New("illegal address")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := NewLink("test", ConnectionConfig{RetryCount: 1})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := l.RetryWithTimeout(ctx, func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLink_Status(t *testing.T) {
	l := NewLink("test", ConnectionConfig{})
	assert.False(t, l.IsConnected())
	l.SetStatus(StatusConnected)
	assert.True(t, l.IsConnected())
	assert.Equal(t, "connected", l.GetStatus().String())
	assert.Nil(t, l.HandleWithError(nil))
}
