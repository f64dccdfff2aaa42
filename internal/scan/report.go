package scan

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sddi-tools/catsync/internal/matching"
	"github.com/sddi-tools/catsync/internal/staleness"
)

// LocalFile is the per-file metadata captured by the directory walk. Records
// are immutable for the duration of a scan pass.
type LocalFile struct {
	Path       string
	Size       int64
	ModifiedAt time.Time
	Ext        string
}

// FileVerdict pairs a local file with its classification and, when one was
// selected, the matched catalog resource.
type FileVerdict struct {
	File    LocalFile
	Verdict staleness.Verdict
	Match   *matching.Match
}

// Totals aggregates the actionable verdicts of a scan.
type Totals struct {
	Count int
	Bytes int64
}

// Report is the sole observable output of a scan. It carries no formatting;
// presentation belongs to the caller. Only actionable verdicts (LocalNewer,
// MissingRemote) are grouped; up-to-date files are tracked but not surfaced.
type Report struct {
	RunID       uuid.UUID
	StartedAt   time.Time
	FinishedAt  time.Time
	Scanned     int // files admitted by the walk filters
	Evaluated   int // files checked against the catalog this pass
	ByExtension map[string][]FileVerdict
	Totals      Totals
}

// noExtensionKey groups files without an extension in the report.
const noExtensionKey = "no extension"

func newReport() *Report {
	return &Report{
		RunID:       uuid.New(),
		StartedAt:   time.Now(),
		ByExtension: make(map[string][]FileVerdict),
	}
}

func (r *Report) add(v FileVerdict) {
	if !v.Verdict.State.Actionable() {
		return
	}
	key := v.File.Ext
	if key == "" {
		key = noExtensionKey
	}
	r.ByExtension[key] = append(r.ByExtension[key], v)
	r.Totals.Count++
	r.Totals.Bytes += v.File.Size
}

// finish stamps the end time and makes grouping order deterministic.
func (r *Report) finish() {
	r.FinishedAt = time.Now()
	for _, verdicts := range r.ByExtension {
		sort.Slice(verdicts, func(i, j int) bool {
			return verdicts[i].File.Path < verdicts[j].File.Path
		})
	}
}

// Extensions returns the report's extension keys in sorted order.
func (r *Report) Extensions() []string {
	keys := make([]string, 0, len(r.ByExtension))
	for key := range r.ByExtension {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
