package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := fetchAttemptsTotal
	Init()

	if fetchAttemptsTotal == nil || fetchAttemptsTotal != first {
		t.Fatal("Init() must build collectors exactly once")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	beforeOK := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("Success"))
	beforeFailed := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("Failed"))
	beforeBytes := testutil.ToFloat64(fetchBytesTotal)

	ObserveFetch("Success", 20*time.Millisecond, 512)
	ObserveFetch("Failed", time.Second, 0)

	if got := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("Success")) - beforeOK; got != 1 {
		t.Errorf("expected one successful attempt, got %f", got)
	}
	if got := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("Failed")) - beforeFailed; got != 1 {
		t.Errorf("expected one failed attempt, got %f", got)
	}
	if got := testutil.ToFloat64(fetchBytesTotal) - beforeBytes; got != 512 {
		t.Errorf("expected 512 bytes, got %f", got)
	}
	if n := testutil.CollectAndCount(fetchDurationSeconds); n < 2 {
		t.Errorf("expected duration series for both statuses, got %d", n)
	}
}

func TestWorkerAndStoreCounters(t *testing.T) {
	Init()
	beforeErrors := testutil.ToFloat64(unexpectedWorkerErrorsTotal)
	beforeWrites := testutil.ToFloat64(storeWritesTotal.WithLabelValues("ok"))
	beforeActive := testutil.ToFloat64(activeWorkers)

	ObserveUnexpectedWorkerError()
	ObserveStoreWrite("ok")
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	ObserveScriptCount(3)

	if got := testutil.ToFloat64(unexpectedWorkerErrorsTotal) - beforeErrors; got != 1 {
		t.Errorf("expected unexpected worker error counter to grow by 1, got %f", got)
	}
	if got := testutil.ToFloat64(storeWritesTotal.WithLabelValues("ok")) - beforeWrites; got != 1 {
		t.Errorf("expected one store write, got %f", got)
	}
	if got := testutil.ToFloat64(activeWorkers) - beforeActive; got != 1 {
		t.Errorf("expected one active worker, got %f", got)
	}
}

func TestPolitenessMetrics(t *testing.T) {
	Init()
	beforeFallbacks := testutil.ToFloat64(robotsFallbacksTotal)

	ObserveRobotsFallback()
	ObserveRateLimitDelay(150 * time.Millisecond)

	if got := testutil.ToFloat64(robotsFallbacksTotal) - beforeFallbacks; got != 1 {
		t.Errorf("expected one robots fallback, got %f", got)
	}
	if n := testutil.CollectAndCount(rateLimitDelaySeconds); n != 1 {
		t.Errorf("expected a single rate limit histogram, got %d", n)
	}
}
