// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
	"github.com/JakeFAU/scriptcensus/internal/metrics"
	"github.com/JakeFAU/scriptcensus/internal/policy/ratelimit"
)

// DefaultUserAgent identifies the fetcher to remote servers.
const DefaultUserAgent = "Mozilla/5.0 (compatible; WebScraper/1.0)"

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodyBytes caps the response body colly reads; 0 keeps colly's default.
	MaxBodyBytes int
	// PerHostRPS spaces requests to the same host; 0 disables it.
	PerHostRPS   float64
	PerHostBurst int
}

// Fetcher counts <script> elements on a page using a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// page is what the hooks capture from a single visit.
type page struct {
	statusCode int
	body       []byte
}

// New builds a Fetcher. Timeout and transport are set once on the shared backend.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	var transport http.RoundTripper = newHTTPTransport(cfg.Timeout)
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport, logger)
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       ratelimit.New(ratelimit.Config{PerHostRPS: cfg.PerHostRPS, Burst: cfg.PerHostBurst}),
		logger:        logger,
	}
}

// Fetch issues one GET for url and counts its script tags.
// Every network, HTTP or parse failure becomes crawler.Failed(url) with a nil
// error; only cancellation of ctx is returned as an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.ProcessedResult, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return crawler.ProcessedResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	start := time.Now()
	var (
		captured page
		fetchErr error
	)
	collector := f.buildCollector(ctx, &captured, &fetchErr)
	err := f.runCollector(ctx, collector, url, &fetchErr)
	if ctx.Err() != nil {
		return crawler.ProcessedResult{}, fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	}

	var count int
	if err == nil {
		count, err = classify(captured)
	}
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveFetch(string(crawler.StatusFailed), elapsed, len(captured.body))
		f.logger.Error("Error processing url",
			zap.String("url", url),
			zap.Int("status_code", captured.statusCode),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return crawler.Failed(url), nil
	}

	metrics.ObserveFetch(string(crawler.StatusSuccess), elapsed, len(captured.body))
	metrics.ObserveScriptCount(count)
	f.logger.Info("Processed url",
		zap.String("url", url),
		zap.Int("script_count", count),
		zap.Int("status_code", captured.statusCode),
		zap.Duration("duration", elapsed),
	)
	return crawler.Succeeded(url, count), nil
}

func (f *Fetcher) buildCollector(ctx context.Context, captured *page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	// Status codes are classified in classify so 2xx other than 200-202 count as success.
	collector.ParseHTTPErrorResponse = true
	if f.cfg.MaxBodyBytes > 0 {
		collector.MaxBodySize = f.cfg.MaxBodyBytes
	}
	f.configureCollectorHooks(collector, captured, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, captured *page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*captured = page{
			statusCode: r.StatusCode,
			body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			captured.statusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func classify(p page) (int, error) {
	if p.statusCode < http.StatusOK || p.statusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("unexpected status %d", p.statusCode)
	}
	return countScripts(p.body)
}

func countScripts(body []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse html: %w", err)
	}
	return doc.Find("script").Length(), nil
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
