package core

import (
	"context"
	"sync"
)

// CommandQueue is an unbounded, blocking FIFO of command words. Any number of
// producers may enqueue concurrently; each queue has exactly one consumer.
type CommandQueue struct {
	lock  sync.Mutex
	words []Word

	// ready holds at most one token and is refilled while words remain, so a
	// blocked consumer never misses an enqueue and never spins.
	ready chan struct{}
}

func NewCommandQueue() *CommandQueue {
	return &CommandQueue{
		words: make([]Word, 0, 16),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends w and wakes a blocked consumer. It never fails.
func (q *CommandQueue) Enqueue(w Word) {
	q.lock.Lock()
	q.words = append(q.words, w)
	q.lock.Unlock()

	q.signal()
}

// Dequeue blocks until a word is available and returns the oldest one.
func (q *CommandQueue) Dequeue() Word {
	w, _ := q.DequeueContext(context.Background())
	return w
}

// DequeueContext is Dequeue with cancellation: it returns ctx.Err() if ctx
// ends before a word arrives.
func (q *CommandQueue) DequeueContext(ctx context.Context) (Word, error) {
	for {
		if w, ok := q.tryDequeue(); ok {
			return w, nil
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// HasItem reports, without blocking, whether a word is waiting.
func (q *CommandQueue) HasItem() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.words) > 0
}

func (q *CommandQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.words)
}

func (q *CommandQueue) tryDequeue() (Word, bool) {
	q.lock.Lock()
	if len(q.words) == 0 {
		q.lock.Unlock()
		return 0, false
	}

	w := q.words[0]
	q.words[0] = 0
	q.words = q.words[1:]
	remaining := len(q.words)
	q.lock.Unlock()

	if remaining > 0 {
		q.signal()
	}
	return w, true
}

func (q *CommandQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
