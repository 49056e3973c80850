package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
	"github.com/JakeFAU/scriptcensus/internal/metrics"
	"github.com/JakeFAU/scriptcensus/internal/queue/memory"
)

const defaultConcurrency = 10

// Config controls Pool behavior.
type Config struct {
	// Concurrency bounds the number of fetch attempts in flight.
	Concurrency int
	// QueueDepth is the URL queue buffer; defaults to Concurrency.
	QueueDepth int
}

// Report lists what a RunAll call committed and what it skipped.
type Report struct {
	Results []crawler.ProcessedResult
	Skipped []string
}

// Pool fans URLs out to a fixed set of workers and commits each result to the
// store as soon as it arrives.
type Pool struct {
	fetcher crawler.Fetcher
	store   crawler.ResultStore
	cfg     Config
	logger  *zap.Logger
}

// NewPool creates a Pool.
func NewPool(fetcher crawler.Fetcher, store crawler.ResultStore, cfg Config, logger *zap.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}
}

// RunAll fetches every URL with at most cfg.Concurrency attempts in flight.
//
// Results are upserted one at a time by the calling goroutine, so store writes
// never interleave. A failed upsert is fatal: outstanding work is canceled and
// the storage error returned. If ctx ends first, RunAll returns what was
// committed so far together with ctx.Err().
func (p *Pool) RunAll(ctx context.Context, urls []string) (Report, error) {
	var report Report
	if len(urls) == 0 {
		return report, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Completed attempts are committed even while the run is being torn down.
	commitCtx := context.WithoutCancel(ctx)

	queue := memory.NewQueue(p.cfg.QueueDepth)
	outcomes := make(chan outcome)

	workers := min(p.cfg.Concurrency, len(urls))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wk := New(p.fetcher, p.logger.With(zap.Int("worker", i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			wk.Run(runCtx, queue, outcomes)
		}()
	}

	go func() {
		defer queue.Close()
		for _, url := range urls {
			if err := queue.Enqueue(runCtx, url); err != nil {
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var storeErr error
	for o := range outcomes {
		if storeErr != nil {
			continue
		}
		if o.err != nil {
			report.Skipped = append(report.Skipped, o.url)
			continue
		}
		if err := p.store.Upsert(commitCtx, o.result); err != nil {
			metrics.ObserveStoreWrite("error")
			p.logger.Error("Failed to save result", zap.String("url", o.url), zap.Error(err))
			storeErr = err
			cancel()
			continue
		}
		metrics.ObserveStoreWrite("ok")
		report.Results = append(report.Results, o.result)
	}

	if storeErr != nil {
		return report, storeErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
