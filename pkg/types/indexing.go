package types

import "time"

// IndexingResult summarizes one indexing run
type IndexingResult struct {
	Success        bool          `json:"success"`
	ProcessedFiles int           `json:"processedFiles"`
	SkippedFiles   int           `json:"skippedFiles"`
	DeletedFiles   int           `json:"deletedFiles"`
	Chunks         int           `json:"chunks"`
	Errors         []error       `json:"-"`
	Duration       time.Duration `json:"duration"`
}

// ErrorMessages returns the recorded errors as strings
func (r *IndexingResult) ErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Phase is the stage an indexing run is in
type Phase string

const (
	PhaseEnumerating Phase = "enumerating"
	PhaseIndexing    Phase = "indexing"
	PhaseCleanup     Phase = "cleanup"
	PhaseDone        Phase = "done"
)

// Progress is reported while a run advances
type Progress struct {
	Phase       Phase  `json:"phase"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	CurrentFile string `json:"currentFile,omitempty"`
}

// ChangeKind classifies a file system change
type ChangeKind int

const (
	ChangeCreate ChangeKind = iota
	ChangeModify
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	}
	return "unknown"
}

// FileEvent is a change to one path. Path is absolute.
type FileEvent struct {
	Path string
	Kind ChangeKind
}
