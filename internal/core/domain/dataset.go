package domain

// BuildState is the lifecycle state of a dataset's index.
type BuildState int

const (
	// StateAbsent means no index has ever been built for the dataset.
	StateAbsent BuildState = iota

	// StateBuilding means a build is currently running.
	StateBuilding

	// StateReady means a current index exists and is queryable.
	StateReady

	// StateFailed means the last build attempt failed. A previously
	// built index, if any, remains current and queryable.
	StateFailed
)

// String returns the lowercase state name.
func (s BuildState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dataset is a snapshot of one isolated unit of per-user state.
type Dataset struct {
	// ID is the opaque dataset identifier handed in by the caller.
	ID string

	// ArchiveDir is where the extracted export lives.
	ArchiveDir string

	// IndexDir is where index artifacts for this dataset are stored.
	IndexDir string

	// State is the dataset's build state at snapshot time.
	State BuildState

	// Fingerprint is the archive fingerprint of the current index,
	// empty when no index has been built.
	Fingerprint Fingerprint
}
