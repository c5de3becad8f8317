package pipeline

// State is the lifecycle position of a run.
//
//	Init → HeaderResolved → Streaming → Draining → {Committed | DeletedEmpty | DeletedError}
//
// A run that fails before reaching Streaming moves straight to DeletedError
// (or DeletedEmpty for an input with no lines at all).
type State uint8

const (
	StateInit State = iota
	StateHeaderResolved
	StateStreaming
	StateDraining
	StateCommitted
	StateDeletedEmpty
	StateDeletedError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHeaderResolved:
		return "header_resolved"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateCommitted:
		return "committed"
	case StateDeletedEmpty:
		return "deleted_empty"
	case StateDeletedError:
		return "deleted_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateDeletedEmpty || s == StateDeletedError
}

// OutputKept reports whether the output file survives a run ending in s.
func (s State) OutputKept() bool { return s == StateCommitted }
