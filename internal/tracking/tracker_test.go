package tracking

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	entries := store.Load()
	assert.Empty(t, entries)
}

func TestLoad_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")
	require.NoError(t, os.WriteFile(path, []byte("{ not json"), 0644))

	entries := NewStore(path).Load()
	assert.Empty(t, entries)
}

func TestLoad_SkipsUnparsableValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")
	content := `{
		"/data/good.csv": "2024-03-15T10:30:00Z",
		"/data/bad.csv": "yesterday"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	entries := NewStore(path).Load()
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, "/data/good.csv")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")
	store := NewStore(path)

	checked := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	require.NoError(t, store.Save(Entries{"/data/report.csv": checked}))

	loaded := store.Load()
	require.Len(t, loaded, 1)
	assert.True(t, loaded["/data/report.csv"].Equal(checked))
}

func TestSave_ReplacesExistingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")
	store := NewStore(path)

	require.NoError(t, store.Save(Entries{"/a": time.Now()}))
	require.NoError(t, store.Save(Entries{"/b": time.Now()}))

	loaded := store.Load()
	assert.Len(t, loaded, 1)
	assert.Contains(t, loaded, "/b")
}

func TestEntries_Changed(t *testing.T) {
	checked := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	entries := Entries{"/data/report.csv": checked}

	assert.False(t, entries.Changed("/data/report.csv", checked.Add(-time.Minute)))
	assert.False(t, entries.Changed("/data/report.csv", checked))
	assert.True(t, entries.Changed("/data/report.csv", checked.Add(time.Minute)))
	assert.True(t, entries.Changed("/data/unknown.csv", checked))
}

func TestEntries_Prune(t *testing.T) {
	entries := Entries{
		"/data/kept.csv": time.Now(),
		"/data/gone.csv": time.Now(),
	}

	removed := entries.Prune(func(path string) bool {
		return path == "/data/kept.csv"
	})
	assert.Equal(t, 1, removed)
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, "/data/kept.csv")
}
