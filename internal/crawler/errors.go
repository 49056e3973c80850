package crawler

import "errors"

var (
	// ErrInput marks a URL list that cannot be read. Fatal before any work starts.
	ErrInput = errors.New("input error")
	// ErrStorage marks a result store that cannot be opened, read or written. Fatal.
	ErrStorage = errors.New("storage error")
	// ErrUnexpectedWorker marks an error that escaped the fetcher's own
	// classification. The URL is skipped and the pool keeps going.
	ErrUnexpectedWorker = errors.New("unexpected worker error")
	// ErrQueueClosed is returned by a drained, closed URL queue.
	ErrQueueClosed = errors.New("queue closed")
)
