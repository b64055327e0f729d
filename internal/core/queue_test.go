package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueue_FIFO(t *testing.T) {
	q := NewCommandQueue()
	assert.False(t, q.HasItem())

	q.Enqueue(Motion(MotionForward))
	q.Enqueue(Speed(300))
	q.Enqueue(Steering(100))

	assert.True(t, q.HasItem())
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, Motion(MotionForward), q.Dequeue())
	assert.Equal(t, Speed(300), q.Dequeue())
	assert.Equal(t, Steering(100), q.Dequeue())
	assert.False(t, q.HasItem())
}

func TestCommandQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewCommandQueue()
	got := make(chan Word, 1)

	go func() { got <- q.Dequeue() }()

	select {
	case <-got:
		t.Fatal("dequeue returned from an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.Enqueue(Speed(42))
	select {
	case w := <-got:
		assert.Equal(t, Speed(42), w)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake after enqueue")
	}
}

func TestCommandQueue_DequeueContextCancelled(t *testing.T) {
	q := NewCommandQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.DequeueContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandQueue_ConcurrentProducers(t *testing.T) {
	q := NewCommandQueue()
	const producers, each = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Enqueue(Speed(p*each + i))
			}
		}(p)
	}

	// Per-producer order must survive interleaving.
	last := make(map[int]int)
	for n := 0; n < producers*each; n++ {
		w := q.Dequeue()
		p, i := w.Payload()/each, w.Payload()%each
		if prev, ok := last[p]; ok {
			require.Greater(t, i, prev)
		}
		last[p] = i
	}
	wg.Wait()
	assert.False(t, q.HasItem())
}
