// Package worker runs fetch attempts over a URL set with bounded concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
	"github.com/JakeFAU/scriptcensus/internal/metrics"
)

// outcome is what a worker hands to the committer for one URL.
type outcome struct {
	url    string
	result crawler.ProcessedResult
	err    error
}

// Worker consumes queue items and runs one fetch attempt per URL.
type Worker struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// New constructs a Worker.
func New(fetcher crawler.Fetcher, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{fetcher: fetcher, logger: logger}
}

// Run blocks, consuming URLs until the queue is drained or the context finishes.
// Attempts aborted by cancellation produce no outcome.
func (w *Worker) Run(ctx context.Context, queue crawler.Queue, out chan<- outcome) {
	for {
		url, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Error("dequeue failed", zap.Error(err))
			}
			return
		}

		result, err := w.process(ctx, url)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			metrics.ObserveUnexpectedWorkerError()
			w.logger.Error("Unexpected error processing url", zap.String("url", url), zap.Error(err))
		}
		out <- outcome{url: url, result: result, err: err}
	}
}

// process runs the fetcher and converts panics and invalid results into
// crawler.ErrUnexpectedWorker.
func (w *Worker) process(ctx context.Context, url string) (result crawler.ProcessedResult, err error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			result = crawler.ProcessedResult{}
			err = fmt.Errorf("%w: panic: %v", crawler.ErrUnexpectedWorker, r)
		}
	}()

	if w.fetcher == nil {
		return crawler.ProcessedResult{}, fmt.Errorf("%w: no fetcher configured", crawler.ErrUnexpectedWorker)
	}
	result, err = w.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.ProcessedResult{}, err
		}
		return crawler.ProcessedResult{}, fmt.Errorf("%w: %w", crawler.ErrUnexpectedWorker, err)
	}
	if result.URL != url {
		return crawler.ProcessedResult{}, fmt.Errorf("%w: fetcher returned result for %q", crawler.ErrUnexpectedWorker, result.URL)
	}
	if err := result.Validate(); err != nil {
		return crawler.ProcessedResult{}, fmt.Errorf("%w: %w", crawler.ErrUnexpectedWorker, err)
	}
	return result, nil
}
