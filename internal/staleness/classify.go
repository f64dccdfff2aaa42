// Package staleness turns a matched resource timestamp (or its absence) into a
// per-file sync verdict.
package staleness

import "time"

// DefaultTolerance absorbs filesystem timestamp granularity and minor clock
// skew between the local machine and the catalog.
const DefaultTolerance = 2 * time.Second

// State is the terminal classification for one local file.
type State int

const (
	// UpToDate means the remote resource is at least as new as the local file.
	UpToDate State = iota
	// LocalNewer means the local file was modified after the remote resource.
	LocalNewer
	// MissingRemote means no catalog resource could be matched to the file.
	MissingRemote
)

func (s State) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case LocalNewer:
		return "local-newer"
	case MissingRemote:
		return "missing-remote"
	}
	return "unknown"
}

// Actionable reports whether the state should appear in the final report.
// UpToDate files are tracked but not surfaced.
func (s State) Actionable() bool {
	return s == LocalNewer || s == MissingRemote
}

// Verdict is the per-file classification. TimeDiff is set only for LocalNewer.
type Verdict struct {
	State    State
	TimeDiff time.Duration
	Detail   string
}

// Classify compares a local modification instant against a matched remote
// timestamp. A nil remote timestamp means the file is unmatched. Both instants
// are absolute; timezone conversion happens only at display time.
func Classify(localMod time.Time, remote *time.Time, tolerance time.Duration) Verdict {
	if remote == nil {
		return Verdict{State: MissingRemote}
	}
	if localMod.After(remote.Add(tolerance)) {
		return Verdict{State: LocalNewer, TimeDiff: localMod.Sub(*remote)}
	}
	return Verdict{State: UpToDate}
}
