package types

// IndexState is the lifecycle state of a workspace index
type IndexState string

const (
	StateIdle     IndexState = "idle"
	StateIndexing IndexState = "indexing"
	StatePaused   IndexState = "paused"
	StateError    IndexState = "error"
)

// Valid reports whether s is a known state
func (s IndexState) Valid() bool {
	switch s {
	case StateIdle, StateIndexing, StatePaused, StateError:
		return true
	}
	return false
}
