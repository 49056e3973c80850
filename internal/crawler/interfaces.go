package crawler

import (
	"context"
	"time"
)

// ResultStore persists one ProcessedResult per URL.
type ResultStore interface {
	// ProcessedKeys returns every URL that already has a row.
	ProcessedKeys(ctx context.Context) (map[string]struct{}, error)
	// Upsert inserts or replaces the row for result.URL.
	Upsert(ctx context.Context, result ProcessedResult) error
	// ScanAll returns every stored row.
	ScanAll(ctx context.Context) ([]ProcessedResult, error)
	Close() error
}

// Fetcher retrieves a page and classifies the attempt.
//
// Network, HTTP and parse failures are reported as a Failed result with a nil
// error. A non-nil error means the attempt was not classified (for example the
// context was canceled) and nothing should be recorded for it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (ProcessedResult, error)
}

// Queue hands URLs from the producer to the workers.
type Queue interface {
	Enqueue(ctx context.Context, url string) error
	Dequeue(ctx context.Context) (string, error)
	Close()
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
