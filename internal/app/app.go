// Package app wires the URL source, result store, fetcher, worker pool and
// exporter into a single run, acting as the dependency container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/scriptcensus/internal/clock/system"
	"github.com/JakeFAU/scriptcensus/internal/config"
	"github.com/JakeFAU/scriptcensus/internal/crawler"
	"github.com/JakeFAU/scriptcensus/internal/export"
	collyfetcher "github.com/JakeFAU/scriptcensus/internal/fetcher/colly"
	"github.com/JakeFAU/scriptcensus/internal/id/uuid"
	"github.com/JakeFAU/scriptcensus/internal/server"
	memorystore "github.com/JakeFAU/scriptcensus/internal/storage/memory"
	pgstore "github.com/JakeFAU/scriptcensus/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/scriptcensus/internal/storage/sqlite"
	"github.com/JakeFAU/scriptcensus/internal/urlsource"
	"github.com/JakeFAU/scriptcensus/internal/worker"
)

// Console messages printed to the user.
const (
	MsgAllProcessed = "All URLs have been processed."
	MsgStarting     = "Starting processing of %d URLs..."
	MsgExported     = "Results exported to %s"
)

// App holds the long-lived services for a run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   crawler.ResultStore
	fetcher crawler.Fetcher
	fs      afero.Fs
	console io.Writer
	ids     crawler.IDGenerator
	clock   crawler.Clock
}

// Option overrides a dependency, mostly for tests.
type Option func(*App)

// WithStore injects a ResultStore instead of opening one from config.
func WithStore(store crawler.ResultStore) Option {
	return func(a *App) { a.store = store }
}

// WithFetcher injects a Fetcher instead of building the Colly one.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithFS sets the filesystem used for the URL file and the CSV export.
func WithFS(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithConsole redirects user-facing messages.
func WithConsole(w io.Writer) Option {
	return func(a *App) { a.console = w }
}

// WithIDGenerator sets the run id source.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(a *App) { a.ids = ids }
}

// WithClock sets the clock used to time the run.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New builds an App from cfg. Dependencies not supplied through opts are
// created here; the store is selected by cfg.Store.Driver.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.console == nil {
		a.console = os.Stdout
	}
	if a.ids == nil {
		a.ids = uuid.New()
	}
	if a.clock == nil {
		a.clock = system.New()
	}
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Fetcher.UserAgent,
			RespectRobots: cfg.Fetcher.RespectRobots,
			Timeout:       cfg.Timeout(),
			MaxBodyBytes:  cfg.Fetcher.MaxBodyBytes,
			PerHostRPS:    cfg.Fetcher.PerHostRPS,
			PerHostBurst:  cfg.Fetcher.PerHostBurst,
		}, logger)
	}
	if a.store == nil {
		store, err := openStore(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (crawler.ResultStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		logger.Info("Using SQLite result store", zap.String("path", cfg.Location))
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: cfg.Location})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		logger.Info("Using Postgres result store", zap.String("table", cfg.Table))
		store, err := pgstore.NewResultStore(ctx, pgstore.Config{
			DSN:      cfg.Location,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn("Using in-memory result store; results are lost on exit")
		return memorystore.NewResultStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", crawler.ErrInput, cfg.Driver)
	}
}

// Run processes every URL in urlFile that the store has not seen yet, then
// exports the whole store to CSV. If ctx is canceled mid-run, results already
// committed stay in the store, the export is skipped and ctx's error returned.
func (a *App) Run(ctx context.Context, urlFile string) (crawler.Summary, error) {
	var summary crawler.Summary

	runID, err := a.ids.NewID()
	if err != nil {
		return summary, fmt.Errorf("generate run id: %w", err)
	}
	summary.RunID = runID
	logger := a.logger.With(zap.String("run_id", runID))
	start := a.clock.Now()

	urls, err := urlsource.Load(a.fs, urlFile)
	if err != nil {
		return summary, err
	}
	summary.Loaded = len(urls)

	processed, err := a.store.ProcessedKeys(ctx)
	if err != nil {
		return summary, fmt.Errorf("load processed urls: %w", err)
	}
	pending := urls.Without(processed).Sorted()
	summary.AlreadyProcessed = summary.Loaded - len(pending)
	summary.Attempted = len(pending)

	if a.cfg.Metrics.Addr != "" {
		srv := server.New(a.cfg.Metrics.Addr, logger)
		if _, err := srv.Start(); err != nil {
			logger.Warn("metrics server not started", zap.Error(err))
		} else {
			defer func() {
				if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("metrics server shutdown", zap.Error(err))
				}
			}()
		}
	}

	if len(pending) == 0 {
		a.say(MsgAllProcessed)
		logger.Info("Nothing to process", zap.Int("loaded", summary.Loaded))
	} else {
		a.say(fmt.Sprintf(MsgStarting, len(pending)))
		logger.Info("Run started",
			zap.Int("loaded", summary.Loaded),
			zap.Int("already_processed", summary.AlreadyProcessed),
			zap.Int("pending", len(pending)),
			zap.Int("workers", a.cfg.Workers),
		)
		pool := worker.NewPool(a.fetcher, a.store, worker.Config{Concurrency: a.cfg.Workers}, logger)
		report, err := pool.RunAll(ctx, pending)
		tally(&summary, report)
		if err != nil {
			summary.Elapsed = a.clock.Now().Sub(start)
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				logger.Warn("Run interrupted",
					zap.Int("committed", len(report.Results)),
					zap.Duration("elapsed", summary.Elapsed),
				)
			}
			return summary, err
		}
	}

	exported, err := export.WriteCSV(ctx, a.fs, a.store, a.cfg.CSVOutput)
	if err != nil {
		return summary, fmt.Errorf("export results: %w", err)
	}
	summary.Exported = exported
	summary.ExportPath = a.cfg.CSVOutput
	a.say(fmt.Sprintf(MsgExported, a.cfg.CSVOutput))

	summary.Elapsed = a.clock.Now().Sub(start)
	logger.Info("Run completed",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("exported", summary.Exported),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) say(msg string) {
	_, _ = fmt.Fprintln(a.console, msg)
}

func tally(summary *crawler.Summary, report worker.Report) {
	for _, r := range report.Results {
		if r.Status == crawler.StatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.Skipped = len(report.Skipped)
}
