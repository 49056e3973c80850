// Package cmd defines the scriptcensus command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scriptcensus/internal/app"
	"github.com/JakeFAU/scriptcensus/internal/config"
	"github.com/JakeFAU/scriptcensus/internal/crawler"
	"github.com/JakeFAU/scriptcensus/internal/logging"
)

const (
	msgCompleted   = "Processing completed."
	msgInterrupted = "Processing interrupted by user."
)

// Runner is what the root command drives. It lets tests swap in a fake.
type Runner interface {
	Run(ctx context.Context, urlFile string) (crawler.Summary, error)
	Close() error
}

// newRunner is the application factory; replaced in tests.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (Runner, error) {
	return app.New(ctx, cfg, logger, app.WithConsole(out))
}

// newLogger builds the run logger; replaced in tests.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scriptcensus <url_file>",
		Short: "Count <script> tags across a list of web pages.",
		Long: `scriptcensus fetches every URL listed in a whitespace separated file,
counts the <script> elements on each page and records the result in a
persistent store. URLs already in the store are skipped, so an interrupted
run can simply be restarted. The whole store is exported to CSV at the end.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	flags := cmd.Flags()
	flags.String("config", "", "optional config file (yaml, json or toml)")
	flags.Int("workers", 10, "number of concurrent fetches")
	flags.Int("timeout", 10, "per request timeout in seconds")
	flags.String("csv_output", "results.csv", "path of the CSV export")
	flags.String("store", config.DriverSQLite, "result store driver: sqlite, postgres or memory")
	flags.String("db", "results.db", "sqlite file or postgres DSN")
	flags.String("log_file", "web_scraper.log", `log file, "-" for stderr`)
	flags.String("user_agent", "", "User-Agent header sent with every request")
	flags.String("metrics_addr", "", "serve /metrics and /healthz on this address during the run")

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("read config flag: %w", err)
	}
	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	runner, err := newRunner(ctx, cfg, logger, out)
	if err != nil {
		_ = logger.Sync()
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := runner.Close(); cerr != nil {
			logger.Warn("Failed to close application", zap.Error(cerr))
		}
	}()

	summary, err := runner.Run(ctx, args[0])
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			logger.Warn("Processing interrupted by user", zap.String("run_id", summary.RunID))
			_, _ = fmt.Fprintln(out, msgInterrupted)
			return nil
		}
		logger.Error("Run failed", zap.String("run_id", summary.RunID), zap.Error(err))
		return err
	}

	printSummary(out, summary)
	_, _ = fmt.Fprintln(out, msgCompleted)
	return nil
}

func printSummary(w io.Writer, s crawler.Summary) {
	_, _ = fmt.Fprintf(w, "Processed %d URLs (%d succeeded, %d failed, %d skipped, %d already done) in %s\n",
		s.Attempted, s.Succeeded, s.Failed, s.Skipped, s.AlreadyProcessed, s.Elapsed.Round(time.Millisecond))
}

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel the run.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}
