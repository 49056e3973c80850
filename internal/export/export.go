// Package export writes the contents of a result store to CSV.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

// Header is the first row of every export.
var Header = []string{"URL", "Script Count", "Status"}

// Scanner is the read side of a result store.
type Scanner interface {
	ScanAll(ctx context.Context) ([]crawler.ProcessedResult, error)
}

// WriteCSV dumps every stored row to path and returns the number of data rows
// written. The file is replaced atomically; an absent script count is written
// as an empty field.
func WriteCSV(ctx context.Context, fs afero.Fs, store Scanner, path string) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("%w: csv output path is required", crawler.ErrInput)
	}
	rows, err := store.ScanAll(ctx)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp export: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = fs.Remove(tmpName) }

	if err := encode(tmp, rows); err != nil {
		_ = tmp.Close()
		cleanup()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("close temp export: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		cleanup()
		return 0, fmt.Errorf("rename export: %w", err)
	}
	return len(rows), nil
}

func encode(w io.Writer, rows []crawler.ProcessedResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		count := ""
		if row.ScriptCount != nil {
			count = strconv.Itoa(*row.ScriptCount)
		}
		if err := cw.Write([]string{row.URL, count, string(row.Status)}); err != nil {
			return fmt.Errorf("write row %q: %w", row.URL, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(fs afero.Fs, path string) ([]crawler.ProcessedResult, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", crawler.ErrInput, path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: missing header", crawler.ErrInput, path)
		}
		return nil, fmt.Errorf("%w: read header: %w", crawler.ErrInput, err)
	}
	for i, name := range Header {
		if header[i] != name {
			return nil, fmt.Errorf("%w: unexpected column %q", crawler.ErrInput, header[i])
		}
	}

	var out []crawler.ProcessedResult
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %w", crawler.ErrInput, err)
		}
		status, err := crawler.ParseStatus(record[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrInput, err)
		}
		row := crawler.ProcessedResult{URL: record[0], Status: status}
		if record[1] != "" {
			n, err := strconv.Atoi(record[1])
			if err != nil {
				return nil, fmt.Errorf("%w: script count %q: %w", crawler.ErrInput, record[1], err)
			}
			row.ScriptCount = &n
		}
		out = append(out, row)
	}
	return out, nil
}
