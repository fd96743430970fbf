package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroadcaster(t *testing.T) {
	t.Run("delivers to every subscriber", func(t *testing.T) {
		broadcaster := NewBroadcaster[int]()
		defer broadcaster.Close()

		first, cancelFirst := broadcaster.Subscribe(1)
		defer cancelFirst()
		second, cancelSecond := broadcaster.Subscribe(1)
		defer cancelSecond()

		evicted := broadcaster.Publish(42)
		require.Zero(t, evicted)
		require.Equal(t, 42, <-first)
		require.Equal(t, 42, <-second)
	})

	t.Run("evicts subscribers that cannot keep up", func(t *testing.T) {
		broadcaster := NewBroadcaster[int]()
		defer broadcaster.Close()

		slow, cancel := broadcaster.Subscribe(1)
		defer cancel()
		broadcaster.Publish(1)
		evicted := broadcaster.Publish(2)
		require.Equal(t, 1, evicted)

		// the buffered value survives, then the channel is closed
		require.Equal(t, 1, <-slow)
		_, open := <-slow
		require.False(t, open)
	})

	t.Run("cancel closes the channel and is idempotent", func(t *testing.T) {
		broadcaster := NewBroadcaster[string]()
		defer broadcaster.Close()

		ch, cancel := broadcaster.Subscribe(1)
		cancel()
		cancel()
		_, open := <-ch
		require.False(t, open)
		require.Zero(t, broadcaster.Publish("dropped"))
	})

	t.Run("subscribing after close yields a closed channel", func(t *testing.T) {
		broadcaster := NewBroadcaster[string]()
		broadcaster.Close()

		ch, cancel := broadcaster.Subscribe(1)
		cancel()
		_, open := <-ch
		require.False(t, open)
	})
}

func TestRetryTransient(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := RetryTransient(context.Background(), 5*time.Second, func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("transient")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("permanent failures stop immediately", func(t *testing.T) {
		calls := 0
		err := RetryTransient(context.Background(), 5*time.Second, func() error {
			calls++
			return Permanent(fmt.Errorf("bad request"))
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})
}
