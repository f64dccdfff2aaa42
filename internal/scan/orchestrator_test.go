package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sddi-tools/catsync/internal/ckan"
	"github.com/sddi-tools/catsync/internal/matching"
	"github.com/sddi-tools/catsync/internal/staleness"
	"github.com/sddi-tools/catsync/internal/tracking"
)

// fakeCatalog serves datasets keyed by identifier, with optional search hits
// and an optional forced error.
type fakeCatalog struct {
	datasets   map[string]*ckan.Dataset
	searchHits []ckan.Dataset
	err        error

	gets     int
	searches int
}

func (f *fakeCatalog) GetDataset(_ context.Context, id string) (*ckan.Dataset, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	if ds, ok := f.datasets[id]; ok {
		return ds, nil
	}
	return nil, fmt.Errorf("package_show: %w", ckan.ErrNotFound)
}

func (f *fakeCatalog) SearchDatasets(_ context.Context, _ string) ([]ckan.Dataset, error) {
	f.searches++
	if f.err != nil {
		return nil, f.err
	}
	return f.searchHits, nil
}

// cancellingCatalog aborts the scan as soon as lookups for the trigger file
// begin, simulating an interrupt arriving mid-pass.
type cancellingCatalog struct {
	trigger string
	cancel  context.CancelFunc
}

func (c *cancellingCatalog) GetDataset(_ context.Context, id string) (*ckan.Dataset, error) {
	if strings.HasPrefix(id, c.trigger) {
		c.cancel()
		return nil, &ckan.Error{Op: "package_show", Message: "connection aborted"}
	}
	return nil, fmt.Errorf("package_show: %w", ckan.ErrNotFound)
}

func (c *cancellingCatalog) SearchDatasets(_ context.Context, _ string) ([]ckan.Dataset, error) {
	return nil, nil
}

func writeFile(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}

func newTestScanner(t *testing.T, catalog Catalog, dir string, opts Options) (*Scanner, *tracking.Store) {
	t.Helper()
	opts.Root = dir
	if opts.AllowedExtensions == nil {
		opts.AllowedExtensions = []string{"*"}
	}
	store := tracking.NewStore(filepath.Join(t.TempDir(), "tracking.json"))
	scanner, err := New(catalog, store, opts)
	require.NoError(t, err)
	return scanner, store
}

func TestNew_MissingRootIsFatal(t *testing.T) {
	store := tracking.NewStore(filepath.Join(t.TempDir(), "tracking.json"))
	_, err := New(&fakeCatalog{}, store, Options{Root: "/nonexistent/dir"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config error")
}

func TestRun_MissingRemote(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orphan.csv", time.Now().Add(-time.Hour))

	scanner, _ := newTestScanner(t, &fakeCatalog{}, dir, Options{})
	report, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Evaluated)
	require.Len(t, report.ByExtension[".csv"], 1)
	assert.Equal(t, staleness.MissingRemote, report.ByExtension[".csv"][0].Verdict.State)
	assert.Equal(t, 1, report.Totals.Count)
}

func TestRun_LocalNewer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "traffic.csv", time.Now())

	catalog := &fakeCatalog{datasets: map[string]*ckan.Dataset{
		"traffic": {
			Name: "traffic",
			Resources: []ckan.Resource{
				{Name: "traffic.csv", LastModified: "2020-01-01T00:00:00"},
			},
		},
	}}

	scanner, _ := newTestScanner(t, catalog, dir, Options{})
	report, err := scanner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.ByExtension[".csv"], 1)
	v := report.ByExtension[".csv"][0]
	assert.Equal(t, staleness.LocalNewer, v.Verdict.State)
	require.NotNil(t, v.Match)
	assert.Equal(t, "traffic.csv", v.Match.Resource.Name)
	assert.Positive(t, v.Verdict.TimeDiff)
}

func TestRun_UpToDateNotReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "traffic.csv", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{datasets: map[string]*ckan.Dataset{
		"traffic": {
			Name: "traffic",
			Resources: []ckan.Resource{
				{Name: "traffic.csv", LastModified: "2030-01-01T00:00:00"},
			},
		},
	}}

	scanner, _ := newTestScanner(t, catalog, dir, Options{})
	report, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Evaluated)
	assert.Zero(t, report.Totals.Count)
	assert.Empty(t, report.ByExtension)
}

func TestRun_SecondPassEvaluatesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orphan.csv", time.Now().Add(-time.Hour))

	catalog := &fakeCatalog{}
	scanner, store := newTestScanner(t, catalog, dir, Options{})

	first, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Evaluated)

	persisted := store.Load()
	second, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Scanned)
	assert.Zero(t, second.Evaluated)
	assert.Zero(t, second.Totals.Count)

	// The tracking document is unchanged when nothing was evaluated.
	after := store.Load()
	require.Len(t, after, len(persisted))
	for path, at := range persisted {
		assert.True(t, after[path].Equal(at), "entry for %s drifted", path)
	}
}

func TestRun_ForceBypassesTracker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orphan.csv", time.Now().Add(-time.Hour))

	catalog := &fakeCatalog{}
	scanner, _ := newTestScanner(t, catalog, dir, Options{Force: true})

	_, err := scanner.Run(context.Background())
	require.NoError(t, err)
	second, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Evaluated)
}

func TestRun_ModifiedFileIsRechecked(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "orphan.csv", time.Now().Add(-time.Hour))

	scanner, _ := newTestScanner(t, &fakeCatalog{}, dir, Options{})
	_, err := scanner.Run(context.Background())
	require.NoError(t, err)

	// Touch the file into the future relative to the tracked check time.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	second, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Evaluated)
}

func TestRun_ExtensionFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.csv", time.Now())
	writeFile(t, dir, "skip.tmp", time.Now())
	writeFile(t, dir, "other.json", time.Now())

	scanner, _ := newTestScanner(t, &fakeCatalog{}, dir, Options{
		AllowedExtensions:  []string{"csv", ".json"},
		ExcludedExtensions: []string{".tmp"},
	})
	report, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Contains(t, report.ByExtension, ".csv")
	assert.Contains(t, report.ByExtension, ".json")
	assert.NotContains(t, report.ByExtension, ".tmp")
}

func TestRun_ExclusionWinsOverWildcard(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.csv", time.Now())
	writeFile(t, dir, "skip.log", time.Now())

	scanner, _ := newTestScanner(t, &fakeCatalog{}, dir, Options{
		AllowedExtensions:  []string{"*"},
		ExcludedExtensions: []string{".log"},
	})
	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
}

func TestRun_ExcludedDirsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.csv", time.Now())
	writeFile(t, dir, filepath.Join("__pycache__", "skip.csv"), time.Now())
	writeFile(t, dir, filepath.Join("nested", "deep.csv"), time.Now())

	scanner, _ := newTestScanner(t, &fakeCatalog{}, dir, Options{
		ExcludeDirs: []string{"__pycache__"},
	})
	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
}

func TestRun_TransportFailureIsSoft(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.csv", time.Now())

	catalog := &fakeCatalog{err: &ckan.Error{Op: "package_show", Message: "connection refused"}}
	scanner, _ := newTestScanner(t, catalog, dir, Options{})

	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.ByExtension[".csv"], 1)
	v := report.ByExtension[".csv"][0]
	assert.Equal(t, staleness.MissingRemote, v.Verdict.State)
	assert.Equal(t, "catalog lookup failed", v.Verdict.Detail)
}

func TestRun_CorruptTrackingStoreDegradesToFullScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.csv", time.Now())

	storePath := filepath.Join(t.TempDir(), "tracking.json")
	require.NoError(t, os.WriteFile(storePath, []byte("garbage"), 0644))

	scanner, err := New(&fakeCatalog{}, tracking.NewStore(storePath), Options{
		Root:              dir,
		AllowedExtensions: []string{"*"},
	})
	require.NoError(t, err)

	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)

	// The rewritten store is valid again.
	entries := tracking.NewStore(storePath).Load()
	assert.Len(t, entries, 1)
}

func TestRun_CancellationPersistsCompletedSubset(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Now().Add(-time.Hour)
	pathA := writeFile(t, dir, "a.csv", mtime)
	pathB := writeFile(t, dir, "b.csv", mtime)
	writeFile(t, dir, "c.csv", mtime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One worker serializes the files in walk order: "a" completes, the
	// lookup for "b" cancels the scan, "c" never gets evaluated.
	catalog := &cancellingCatalog{trigger: "b", cancel: cancel}
	scanner, store := newTestScanner(t, catalog, dir, Options{Workers: 1})

	report, err := scanner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Totals.Count)

	entries := store.Load()
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, pathA)
	assert.Contains(t, entries, pathB)
}

func TestRun_PruneDropsDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doomed.csv", time.Now().Add(-time.Hour))

	catalog := &fakeCatalog{}
	scanner, store := newTestScanner(t, catalog, dir, Options{})
	_, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, store.Load(), 1)

	require.NoError(t, os.Remove(path))

	pruner, err := New(catalog, store, Options{
		Root:              dir,
		AllowedExtensions: []string{"*"},
		Prune:             true,
	})
	require.NoError(t, err)
	_, err = pruner.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.Load())
}

func TestRun_WithoutPruneKeepsDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doomed.csv", time.Now().Add(-time.Hour))

	scanner, store := newTestScanner(t, &fakeCatalog{}, dir, Options{Force: true})
	_, err := scanner.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.Load(), 1)
}

func TestResolveRemote_SearchFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Traffic Flow.csv", time.Now())

	// No identifier resolves, but search returns a dataset whose standardized
	// name matches the filename base.
	catalog := &fakeCatalog{searchHits: []ckan.Dataset{
		{
			Name: "trafficflow",
			Resources: []ckan.Resource{
				{Name: "Traffic Flow.csv", LastModified: "2020-01-01T00:00:00"},
			},
		},
	}}

	scanner, _ := newTestScanner(t, catalog, dir, Options{})
	report, err := scanner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.ByExtension[".csv"], 1)
	v := report.ByExtension[".csv"][0]
	assert.Equal(t, staleness.LocalNewer, v.Verdict.State)
	assert.Positive(t, catalog.gets, "identifier lookups must run first")
	assert.Positive(t, catalog.searches)
}

func TestSelectDataset_RejectsLooseSearchHits(t *testing.T) {
	datasets := []ckan.Dataset{
		{Name: "unrelated", Title: "Completely different topic"},
	}
	assert.Nil(t, selectDataset(datasets, "traffic_flow.csv"))
}

func TestSelectDataset_PrefersExactStandardizedName(t *testing.T) {
	datasets := []ckan.Dataset{
		{Name: "other", Title: "traffic flow archive of traffic_flow data"},
		{Name: "trafficflow"},
	}
	ds := selectDataset(datasets, "traffic_flow.csv")
	require.NotNil(t, ds)
	assert.Equal(t, "trafficflow", ds.Name)
}

func TestDatasetTimestamp_FallsBackToMetadata(t *testing.T) {
	ds := &ckan.Dataset{
		Name:             "nores",
		MetadataModified: "2024-03-15T10:00:00",
	}
	rm, ok := datasetTimestamp(ds, "nores.csv")
	require.True(t, ok)
	require.NotNil(t, rm.Timestamp)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), rm.Timestamp.UTC())
	assert.Nil(t, rm.Match)
}

func TestDatasetTimestamp_PrefersMatchedResource(t *testing.T) {
	ds := &ckan.Dataset{
		Name:             "traffic",
		MetadataModified: "2030-01-01T00:00:00",
		Resources: []ckan.Resource{
			{Name: "traffic.csv", LastModified: "2024-03-15T10:00:00"},
			{Name: "other.pdf", LastModified: "2031-01-01T00:00:00"},
		},
	}
	rm, ok := datasetTimestamp(ds, "traffic.csv")
	require.True(t, ok)
	require.NotNil(t, rm.Match)
	assert.Equal(t, "traffic.csv", rm.Match.Resource.Name)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), rm.Timestamp.UTC())
}

func TestDatasetTimestamp_NoTimestampsAtAll(t *testing.T) {
	ds := &ckan.Dataset{Name: "empty"}
	_, ok := datasetTimestamp(ds, "empty.csv")
	assert.False(t, ok)
}

func TestDatasetTimestamp_LatestResourceWhenNoneMatch(t *testing.T) {
	m := matching.ScoreResources(nil, "x.csv")
	require.Nil(t, m)

	ds := &ckan.Dataset{
		Name: "bundle",
		Resources: []ckan.Resource{
			{Name: "a", Created: "2024-01-01T00:00:00"},
			{Name: "b", Created: "2024-06-01T00:00:00"},
		},
	}
	rm, ok := datasetTimestamp(ds, "unrelated_name.csv")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), rm.Timestamp.UTC())
}
