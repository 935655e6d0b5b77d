package bootstrap

// Stage identifies one of the four pipeline components.
type Stage int

const (
	StageManifest Stage = iota + 1
	StageFilesystem
	StageModules
	StageEntry
)

func (s Stage) String() string {
	switch s {
	case StageManifest:
		return "manifest"
	case StageFilesystem:
		return "filesystem"
	case StageModules:
		return "modules"
	case StageEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// State is a bootstrap attempt's position in the pipeline. Transitions
// only move forward; any failure jumps straight to StateFailed.
type State int

const (
	StateIdle State = iota
	StateManifestFetched
	StateFilesystemStaged
	StateModulesInstalled
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateManifestFetched:
		return "manifest-fetched"
	case StateFilesystemStaged:
		return "filesystem-staged"
	case StateModulesInstalled:
		return "modules-installed"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) canAdvanceTo(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return next == s+1
}
