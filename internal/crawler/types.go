package crawler

import (
	"fmt"
	"sort"
	"time"
)

// Status is the terminal outcome of a fetch attempt.
type Status string

// Status values persisted in the results table.
const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// ParseStatus converts a persisted status string back into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusSuccess:
		return StatusSuccess, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

// ProcessedResult is the row recorded for a URL once a fetch attempt finishes.
// ScriptCount is nil unless Status is StatusSuccess.
type ProcessedResult struct {
	URL         string `json:"url"`
	ScriptCount *int   `json:"script_count,omitempty"`
	Status      Status `json:"status"`
}

// Succeeded builds a successful result with the given script count.
func Succeeded(url string, scriptCount int) ProcessedResult {
	n := scriptCount
	return ProcessedResult{URL: url, ScriptCount: &n, Status: StatusSuccess}
}

// Failed builds a failed result; failed rows never carry a count.
func Failed(url string) ProcessedResult {
	return ProcessedResult{URL: url, Status: StatusFailed}
}

// Validate enforces the row invariants.
func (r ProcessedResult) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("result url is required")
	}
	switch r.Status {
	case StatusSuccess:
		if r.ScriptCount == nil {
			return fmt.Errorf("successful result for %q has no script count", r.URL)
		}
		if *r.ScriptCount < 0 {
			return fmt.Errorf("negative script count %d for %q", *r.ScriptCount, r.URL)
		}
	case StatusFailed:
		if r.ScriptCount != nil {
			return fmt.Errorf("failed result for %q carries a script count", r.URL)
		}
	default:
		return fmt.Errorf("unknown status %q for %q", r.Status, r.URL)
	}
	return nil
}

// URLSet is the deduplicated set of URLs loaded for one run.
type URLSet map[string]struct{}

// NewURLSet builds a set from the given URLs, dropping duplicates.
func NewURLSet(urls ...string) URLSet {
	set := make(URLSet, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set
}

// Contains reports whether url is in the set.
func (s URLSet) Contains(url string) bool {
	_, ok := s[url]
	return ok
}

// Without returns the members of s not present in processed.
func (s URLSet) Without(processed map[string]struct{}) URLSet {
	out := make(URLSet, len(s))
	for u := range s {
		if _, done := processed[u]; done {
			continue
		}
		out[u] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s URLSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Summary reports what a single run did.
type Summary struct {
	RunID            string        `json:"run_id"`
	Loaded           int           `json:"loaded"`
	AlreadyProcessed int           `json:"already_processed"`
	Attempted        int           `json:"attempted"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"`
	Exported         int           `json:"exported"`
	ExportPath       string        `json:"export_path"`
	Elapsed          time.Duration `json:"elapsed"`
}
