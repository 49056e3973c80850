// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

var _ crawler.Clock = New()

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockElapsedNonNegative checks durations measured between calls.
func TestClockElapsedNonNegative(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	second := clk.Now()
	if second.Sub(first) < 0 {
		t.Fatalf("expected second call %v to be >= first %v", second, first)
	}
}
