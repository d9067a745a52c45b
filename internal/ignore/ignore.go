// Package ignore persists the user's permanent ignore list: words the
// feedback loop must never flag again. Entries are stored lowercased, so
// ignoring "Kubernetes" also covers "kubernetes".
package ignore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store is the ignore list consulted by issue filtering.
type Store interface {
	// Contains reports whether word is on the ignore list.
	// Case-insensitive.
	Contains(word string) bool

	// Add puts word on the list and persists it immediately.
	Add(word string) error

	// Words returns the current list, sorted.
	Words() []string
}

// fileFormat is the on-disk JSON shape.
type fileFormat struct {
	Words []string `json:"words"`
}

// FileStore is a [Store] backed by a JSON file. Writes are synchronous so
// an ignored word survives a crash. Safe for concurrent use.
type FileStore struct {
	mu    sync.Mutex
	path  string
	words map[string]struct{}
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads the ignore list at path, creating an empty store when
// the file does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, words: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ignore: read %q: %w", path, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ignore: decode %q: %w", path, err)
	}
	for _, w := range f.Words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			fs.words[w] = struct{}{}
		}
	}
	return fs, nil
}

// Contains implements [Store].
func (s *FileStore) Contains(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.words[strings.ToLower(word)]
	return ok
}

// Add implements [Store].
func (s *FileStore) Add(word string) error {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return fmt.Errorf("ignore: empty word")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.words[word]; ok {
		return nil
	}
	s.words[word] = struct{}{}
	return s.persistLocked()
}

// Words implements [Store].
func (s *FileStore) Words() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *FileStore) sortedLocked() []string {
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// persistLocked writes the full list atomically via a temp-file rename.
func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(fileFormat{Words: s.sortedLocked()}, "", "  ")
	if err != nil {
		return fmt.Errorf("ignore: marshal: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ignore: create dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, fs.FileMode(0o644)); err != nil {
		return fmt.Errorf("ignore: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("ignore: rename: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory [Store] for tests and for running without a
// config directory.
type MemoryStore struct {
	mu    sync.Mutex
	words map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{words: make(map[string]struct{})}
}

func (s *MemoryStore) Contains(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.words[strings.ToLower(word)]
	return ok
}

func (s *MemoryStore) Add(word string) error {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return fmt.Errorf("ignore: empty word")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[word] = struct{}{}
	return nil
}

func (s *MemoryStore) Words() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
