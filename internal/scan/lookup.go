package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sddi-tools/catsync/internal/ckan"
	"github.com/sddi-tools/catsync/internal/logging"
	"github.com/sddi-tools/catsync/internal/matching"
	"github.com/sddi-tools/catsync/internal/timeutil"
)

// Catalog is the collaborator the scanner queries. Both operations distinguish
// "nothing there" (ErrNotFound / empty slice) from transport failure.
type Catalog interface {
	GetDataset(ctx context.Context, id string) (*ckan.Dataset, error)
	SearchDatasets(ctx context.Context, query string) ([]ckan.Dataset, error)
}

// remoteMatch is the outcome of resolving one filename against the catalog.
// A nil Timestamp means no usable remote counterpart was found.
type remoteMatch struct {
	Timestamp *time.Time
	Match     *matching.Match
	Detail    string
}

// resolveRemote finds the remote timestamp to compare a file against. It tries
// derived dataset identifiers first and falls back to full-text search only
// when no identifier hits. The returned error is transport-level only; the
// caller recovers it as a soft per-file failure.
func (s *Scanner) resolveRemote(ctx context.Context, filename string) (remoteMatch, error) {
	for _, id := range matching.Identifiers(filename) {
		ds, err := s.catalog.GetDataset(ctx, id)
		if ckan.IsNotFound(err) {
			continue
		}
		if err != nil {
			return remoteMatch{}, err
		}
		if rm, ok := datasetTimestamp(ds, filename); ok {
			return rm, nil
		}
	}

	for _, term := range matching.SearchTerms(filename) {
		datasets, err := s.catalog.SearchDatasets(ctx, term)
		if err != nil {
			return remoteMatch{}, err
		}
		ds := selectDataset(datasets, filename)
		if ds == nil {
			continue
		}
		if rm, ok := datasetTimestamp(ds, filename); ok {
			return rm, nil
		}
	}

	return remoteMatch{}, nil
}

// datasetTimestamp picks the timestamp a found dataset contributes: the scored
// matching resource when one exists, otherwise the newest resource, otherwise
// the dataset metadata time. Returns false when the dataset carries no
// parsable timestamp at all.
func datasetTimestamp(ds *ckan.Dataset, filename string) (remoteMatch, bool) {
	if m := matching.ScoreResources(ds.Resources, filename); m != nil {
		if t := resourceTime(m.Resource); t != nil {
			return remoteMatch{
				Timestamp: t,
				Match:     m,
				Detail:    fmt.Sprintf("resource %q in dataset %s", m.Resource.Name, ds.Name),
			}, true
		}
	}

	if t := latestResourceTime(ds.Resources); t != nil {
		return remoteMatch{
			Timestamp: t,
			Detail:    fmt.Sprintf("latest resource in dataset %s", ds.Name),
		}, true
	}

	for _, raw := range []string{ds.MetadataModified, ds.MetadataCreated} {
		if raw == "" {
			continue
		}
		t, err := timeutil.ParseUTC(raw)
		if err != nil {
			logging.L().Warn("unparsable dataset timestamp",
				logging.String("dataset", ds.Name), logging.Err(err))
			continue
		}
		return remoteMatch{
			Timestamp: &t,
			Detail:    fmt.Sprintf("dataset metadata of %s", ds.Name),
		}, true
	}

	return remoteMatch{}, false
}

// resourceTime parses a resource's modification time, preferring last_modified
// over created. A malformed timestamp is logged and treated as absent.
func resourceTime(r ckan.Resource) *time.Time {
	raw := r.LastModified
	if raw == "" {
		raw = r.Created
	}
	if raw == "" {
		return nil
	}
	t, err := timeutil.ParseUTC(raw)
	if err != nil {
		logging.L().Warn("unparsable resource timestamp",
			logging.String("resource", r.Name), logging.Err(err))
		return nil
	}
	return &t
}

func latestResourceTime(resources []ckan.Resource) *time.Time {
	var latest *time.Time
	for _, r := range resources {
		t := resourceTime(r)
		if t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return latest
}

// selectDataset validates search hits against the filename. Full-text search
// is fuzzy, so only close name or title matches are accepted, best tier first.
func selectDataset(datasets []ckan.Dataset, filename string) *ckan.Dataset {
	base := matching.StripExt(filename)
	expected := matching.Standardize(base)

	var best *ckan.Dataset
	bestTier := -1
	for i := range datasets {
		ds := &datasets[i]
		tier := -1
		switch {
		case ds.Name == expected:
			tier = 0
		case strings.EqualFold(ds.Name, base):
			tier = 1
		case len(base) > 3 && titleMatches(ds.Title, base):
			tier = 2
		}
		if tier >= 0 && (bestTier == -1 || tier < bestTier) {
			best = ds
			bestTier = tier
		}
	}
	return best
}

// titleMatches requires the base name as a substring plus at least half of the
// base's words appearing in the title, to keep loose search hits out.
func titleMatches(title, base string) bool {
	lowerTitle := strings.ToLower(title)
	lowerBase := strings.ToLower(base)
	if !strings.Contains(lowerTitle, lowerBase) {
		return false
	}

	titleWords := make(map[string]struct{})
	for _, w := range strings.Fields(lowerTitle) {
		titleWords[w] = struct{}{}
	}
	baseWords := strings.Fields(strings.ReplaceAll(lowerBase, "_", " "))
	if len(baseWords) == 0 {
		return false
	}
	overlap := 0
	for _, w := range baseWords {
		if _, ok := titleWords[w]; ok {
			overlap++
		}
	}
	return float64(overlap)/float64(len(baseWords)) >= 0.5
}
