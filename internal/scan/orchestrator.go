// Package scan walks the monitored directory tree and drives the matching,
// comparison and tracking components per file, aggregating the results into a
// single report.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sddi-tools/catsync/internal/logging"
	"github.com/sddi-tools/catsync/internal/staleness"
	"github.com/sddi-tools/catsync/internal/tracking"
)

// Wildcard in the allowed-extension set admits every extension.
const Wildcard = "*"

// defaultWorkers bounds parallel file evaluations when the caller does not.
const defaultWorkers = 4

// Options configures a scan pass.
type Options struct {
	Root               string
	AllowedExtensions  []string
	ExcludedExtensions []string
	ExcludeDirs        []string
	Force              bool // bypass the tracker filter entirely
	Prune              bool // drop tracking entries for files no longer on disk
	Workers            int
	Tolerance          time.Duration
}

// Scanner evaluates local files against the catalog. It holds no mutable
// state between runs; all per-pass state lives inside Run.
type Scanner struct {
	catalog     Catalog
	store       *tracking.Store
	opts        Options
	allowAll    bool
	allowed     map[string]struct{}
	excluded    map[string]struct{}
	excludeDirs map[string]struct{}
}

// New validates the scan options and builds a scanner. A missing or invalid
// root directory is fatal before anything is scanned.
func New(catalog Catalog, store *tracking.Store, opts Options) (*Scanner, error) {
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("config error: monitored directory %s: %w", opts.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config error: monitored directory %s is not a directory", opts.Root)
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = staleness.DefaultTolerance
	}

	s := &Scanner{
		catalog:     catalog,
		store:       store,
		opts:        opts,
		allowed:     make(map[string]struct{}),
		excluded:    make(map[string]struct{}),
		excludeDirs: make(map[string]struct{}),
	}
	for _, ext := range opts.AllowedExtensions {
		if ext == Wildcard {
			s.allowAll = true
			continue
		}
		s.allowed[normalizeExt(ext)] = struct{}{}
	}
	for _, ext := range opts.ExcludedExtensions {
		s.excluded[normalizeExt(ext)] = struct{}{}
	}
	for _, name := range opts.ExcludeDirs {
		if name != "" {
			s.excludeDirs[name] = struct{}{}
		}
	}
	return s, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// admitted applies the extension allow and exclusion sets.
func (s *Scanner) admitted(ext string) bool {
	if _, ok := s.excluded[ext]; ok {
		return false
	}
	if s.allowAll {
		return true
	}
	_, ok := s.allowed[ext]
	return ok
}

// collectFiles walks the root, applying directory and extension filters.
// Unreadable entries are skipped, not fatal.
func (s *Scanner) collectFiles() ([]LocalFile, error) {
	var files []LocalFile
	err := filepath.WalkDir(s.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.opts.Root {
				return err
			}
			logging.L().Warn("skipping unreadable entry", logging.String("path", path), logging.Err(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.opts.Root {
				if _, ok := s.excludeDirs[d.Name()]; ok {
					return filepath.SkipDir
				}
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !s.admitted(ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logging.L().Warn("cannot stat file", logging.String("path", path), logging.Err(err))
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		files = append(files, LocalFile{
			Path:       abs,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
			Ext:        ext,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.opts.Root, err)
	}
	return files, nil
}

// evaluate classifies one file. Transport and parse failures never escape;
// they degrade to an unmatched classification so the scan keeps going.
func (s *Scanner) evaluate(ctx context.Context, f LocalFile) FileVerdict {
	filename := filepath.Base(f.Path)

	rm, err := s.resolveRemote(ctx, filename)
	if err != nil {
		logging.L().Warn("catalog lookup failed, classifying as unmatched",
			logging.String("file", filename), logging.Err(err))
		return FileVerdict{
			File:    f,
			Verdict: staleness.Verdict{State: staleness.MissingRemote, Detail: "catalog lookup failed"},
		}
	}

	verdict := staleness.Classify(f.ModifiedAt, rm.Timestamp, s.opts.Tolerance)
	verdict.Detail = rm.Detail
	return FileVerdict{File: f, Verdict: verdict, Match: rm.Match}
}

// Run executes one scan pass. On cancellation the tracker still persists the
// completed subset, so the next run does not repeat finished work; the partial
// report is returned alongside the context error.
func (s *Scanner) Run(ctx context.Context) (*Report, error) {
	report := newReport()

	files, err := s.collectFiles()
	if err != nil {
		return nil, err
	}
	report.Scanned = len(files)

	entries := s.store.Load()

	toCheck := files
	if !s.opts.Force {
		toCheck = toCheck[:0:0]
		for _, f := range files {
			if entries.Changed(f.Path, f.ModifiedAt) {
				toCheck = append(toCheck, f)
			}
		}
	}
	report.Evaluated = len(toCheck)

	logging.L().Info("scan started",
		logging.String("run_id", report.RunID.String()),
		logging.String("root", s.opts.Root),
		logging.Int("scanned", report.Scanned),
		logging.Int("to_check", len(toCheck)),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, f := range toCheck {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v := s.evaluate(gctx, f)
			mu.Lock()
			report.add(v)
			entries[f.Path] = time.Now()
			mu.Unlock()
			return nil
		})
	}
	waitErr := g.Wait()

	if s.opts.Prune {
		removed := entries.Prune(func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		})
		if removed > 0 {
			logging.L().Info("pruned tracking entries", logging.Int("removed", removed))
		}
	}

	if err := s.store.Save(entries); err != nil {
		logging.L().Warn("persisting tracking store failed", logging.Err(err))
	}

	report.finish()
	logging.L().Info("scan finished",
		logging.String("run_id", report.RunID.String()),
		logging.Int("actionable", report.Totals.Count),
		logging.Int64("bytes", report.Totals.Bytes),
		logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, waitErr
}
