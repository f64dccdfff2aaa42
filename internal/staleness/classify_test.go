package staleness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify_LocalNewer(t *testing.T) {
	remote := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	local := remote.Add(time.Hour)

	v := Classify(local, &remote, DefaultTolerance)
	assert.Equal(t, LocalNewer, v.State)
	assert.Equal(t, time.Hour, v.TimeDiff)
}

func TestClassify_WithinToleranceIsUpToDate(t *testing.T) {
	remote := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	local := remote.Add(time.Second)

	v := Classify(local, &remote, DefaultTolerance)
	assert.Equal(t, UpToDate, v.State)
	assert.Zero(t, v.TimeDiff)
}

func TestClassify_ExactlyAtToleranceIsUpToDate(t *testing.T) {
	remote := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	local := remote.Add(DefaultTolerance)

	v := Classify(local, &remote, DefaultTolerance)
	assert.Equal(t, UpToDate, v.State)
}

func TestClassify_RemoteNewer(t *testing.T) {
	remote := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	local := remote.Add(-time.Hour)

	v := Classify(local, &remote, DefaultTolerance)
	assert.Equal(t, UpToDate, v.State)
}

func TestClassify_MissingRemote(t *testing.T) {
	v := Classify(time.Now(), nil, DefaultTolerance)
	assert.Equal(t, MissingRemote, v.State)
}

func TestClassify_ComparesInstantsNotWallClocks(t *testing.T) {
	// Same instant expressed in different zones must compare equal.
	berlin, err := time.LoadLocation("Europe/Berlin")
	assert.NoError(t, err)
	remote := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	local := remote.In(berlin)

	v := Classify(local, &remote, 0)
	assert.Equal(t, UpToDate, v.State)
}

func TestState_Actionable(t *testing.T) {
	assert.False(t, UpToDate.Actionable())
	assert.True(t, LocalNewer.Actionable())
	assert.True(t, MissingRemote.Actionable())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "up-to-date", UpToDate.String())
	assert.Equal(t, "local-newer", LocalNewer.String())
	assert.Equal(t, "missing-remote", MissingRemote.String())
}
