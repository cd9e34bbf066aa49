package types

import "time"

// WorkspaceFile is a source file discovered by one enumeration pass
type WorkspaceFile struct {
	Path     string // Absolute path
	RelPath  string // Relative to workspace root, slash separated
	Language string
	ModTime  time.Time
	Size     int64
}
