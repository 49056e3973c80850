// Package memory provides the in-process URL queue feeding the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

// Queue is a bounded in-memory URL queue with context-aware operations.
type Queue struct {
	ch      chan string
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan string, capacity),
	}
}

// Enqueue pushes a URL into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, url string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- url:
		return nil
	}
}

// Dequeue pops the next URL, respecting context cancellation. Once the queue
// is closed and drained it returns crawler.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case url, ok := <-q.ch:
		if !ok {
			return "", crawler.ErrQueueClosed
		}
		return url, nil
	}
}

// Close closes the underlying channel; buffered URLs remain dequeueable.
// Only the producer may call Close.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
