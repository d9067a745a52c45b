// Package history records every correction attempt: original text,
// corrected text, provider, latency, and whether it succeeded. The default
// store appends JSON lines to a local file; a PostgreSQL-backed store lives
// in the postgres subpackage for shared or long-lived installations.
package history

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

// Entry is one recorded correction attempt.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Original   string    `json:"original"`
	Corrected  string    `json:"corrected,omitempty"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Succeeded  bool      `json:"succeeded"`
}

// Store persists correction history.
type Store interface {
	// Append records one entry.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// FileStore persists history as append-only JSON lines in a local file.
// Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Append implements [Store].
func (fs *FileStore) Append(ctx context.Context, e Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Recent implements [Store]. Lines that fail to decode are skipped rather
// than poisoning the whole read.
func (fs *FileStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	var all []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		all = append(all, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history: read: %w", err)
	}

	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// ExportCSV writes entries to w as CSV with a header row, for spreadsheet
// review of correction quality.
func ExportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "provider", "model", "duration_ms", "succeeded", "original", "corrected"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("history: write csv header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Provider,
			e.Model,
			strconv.FormatInt(e.DurationMs, 10),
			strconv.FormatBool(e.Succeeded),
			e.Original,
			e.Corrected,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("history: write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("history: flush csv: %w", err)
	}
	return nil
}
