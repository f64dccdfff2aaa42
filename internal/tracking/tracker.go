// Package tracking persists per-file last-checked state between scans so
// unchanged files can be skipped.
package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sddi-tools/catsync/internal/logging"
)

// Entries maps absolute file paths to the time they were last checked.
type Entries map[string]time.Time

// Changed reports whether a file must be re-evaluated: its modification time
// is newer than the tracked entry, or it has no entry at all.
func (e Entries) Changed(path string, mod time.Time) bool {
	last, ok := e[path]
	return !ok || mod.After(last)
}

// Prune drops entries whose path no longer exists according to the given
// predicate and returns how many were removed. Pruning is an explicit caller
// decision, never implied by force mode.
func (e Entries) Prune(exists func(path string) bool) int {
	removed := 0
	for path := range e {
		if !exists(path) {
			delete(e, path)
			removed++
		}
	}
	return removed
}

// Store reads and writes the tracking document. A missing or corrupt store
// must never abort a scan.
type Store struct {
	path string
}

// NewStore returns a store backed by the given JSON document path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing document path.
func (s *Store) Path() string {
	return s.path
}

// valueLayouts accepts the timestamps the store has historically written,
// including offset-less values which are taken as local time.
var valueLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// Load reads the tracking document. On any failure it returns an empty map:
// corruption degrades to a full re-evaluation, nothing worse.
func (s *Store) Load() Entries {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.L().Warn("tracking store unreadable, starting empty",
				logging.String("path", s.path), logging.Err(err))
		}
		return Entries{}
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.L().Warn("tracking store corrupt, starting empty",
			logging.String("path", s.path), logging.Err(err))
		return Entries{}
	}

	entries := make(Entries, len(raw))
	for path, value := range raw {
		t, ok := parseValue(value)
		if !ok {
			logging.L().Warn("skipping unparsable tracking entry",
				logging.String("path", path), logging.String("value", value))
			continue
		}
		entries[path] = t
	}
	return entries
}

func parseValue(value string) (time.Time, bool) {
	for i, layout := range valueLayouts {
		loc := time.UTC
		if i > 0 {
			loc = time.Local
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Save writes the tracking document atomically via a temp file and rename.
// Callers treat a failure as non-fatal and log it.
func (s *Store) Save(entries Entries) error {
	raw := make(map[string]string, len(entries))
	for path, t := range entries {
		raw[path] = t.Format(time.RFC3339Nano)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tracking store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tracking-*")
	if err != nil {
		return fmt.Errorf("creating temp tracking file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing tracking store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp tracking file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing tracking store: %w", err)
	}
	return nil
}
