// Package urlsource loads the URL list for a run.
package urlsource

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

// Load reads path, splits it on any whitespace and returns the unique URLs.
// An empty file yields an empty set.
func Load(fs afero.Fs, path string) (crawler.URLSet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: url file path is required", crawler.ErrInput)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: read url file %q: %w", crawler.ErrInput, path, err)
	}
	return crawler.NewURLSet(strings.Fields(string(data))...), nil
}
