package enumerator

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/codecontext/pkg/types"
)

// DefaultMaxFileSize is the size cutoff used when Options leaves it unset
const DefaultMaxFileSize = 1 << 20

// DefaultExcludes are directory names never descended into
var DefaultExcludes = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	"dist",
	"build",
	"target",
	".codecontext",
}

// Options controls which files an Enumerator yields
type Options struct {
	// Exclude holds doublestar globs matched against the slash separated
	// relative path. A bare name such as "vendor" also matches any path
	// segment with that name.
	Exclude     []string
	Extensions  []string // allowlist without the leading dot; empty allows all
	MaxFileSize int64
}

// Enumerator lists workspace files for one root
type Enumerator struct {
	root       string
	excludes   []string
	extensions map[string]bool
	maxSize    int64
}

// New creates an enumerator. Invalid glob patterns are rejected.
func New(root string, opts Options) (*Enumerator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	excludes := make([]string, 0, len(DefaultExcludes)+len(opts.Exclude))
	excludes = append(excludes, DefaultExcludes...)
	for _, pattern := range opts.Exclude {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, &types.ConfigurationError{Field: "index.exclude", Reason: "invalid pattern " + pattern}
		}
		excludes = append(excludes, pattern)
	}

	var exts map[string]bool
	if len(opts.Extensions) > 0 {
		exts = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			exts[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
		}
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Enumerator{
		root:       filepath.Clean(abs),
		excludes:   excludes,
		extensions: exts,
		maxSize:    maxSize,
	}, nil
}

// Root returns the absolute workspace root
func (e *Enumerator) Root() string {
	return e.root
}

// Files returns a lazy sequence over the workspace. Each call walks the tree
// again, so the sequence can be ranged over any number of times.
//
// Oversized files are yielded with a *types.SkippedFileError and must not be
// processed. Walk errors for individual entries are skipped.
func (e *Enumerator) Files(ctx context.Context) iter.Seq2[types.WorkspaceFile, error] {
	return func(yield func(types.WorkspaceFile, error) bool) {
		stopped := errors.New("stop")
		err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			rel, relErr := e.rel(path)
			if relErr != nil {
				return nil
			}

			if d.IsDir() {
				if path != e.root && e.Excluded(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
				return nil
			}
			if e.Excluded(rel) || !e.allowedExt(path) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			file := e.workspaceFile(path, rel, info)
			var skipErr error
			if info.Size() > e.maxSize {
				skipErr = &types.SkippedFileError{Path: rel, Size: info.Size(), Limit: e.maxSize}
			}
			if !yield(file, skipErr) {
				return stopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, stopped) {
			yield(types.WorkspaceFile{}, err)
		}
	}
}

// Collect drains Files into accepted files and per-file skip errors.
func (e *Enumerator) Collect(ctx context.Context) ([]types.WorkspaceFile, []error, error) {
	var (
		files   []types.WorkspaceFile
		skipped []error
	)
	for file, err := range e.Files(ctx) {
		if err != nil {
			var skip *types.SkippedFileError
			if errors.As(err, &skip) {
				skipped = append(skipped, err)
				continue
			}
			return files, skipped, err
		}
		files = append(files, file)
	}
	return files, skipped, nil
}

// Accept applies the enumeration rules to a single absolute path. The
// returned error is non-nil for oversized files.
func (e *Enumerator) Accept(path string) (types.WorkspaceFile, bool, error) {
	rel, err := e.rel(path)
	if err != nil || rel == "." || e.Excluded(rel) || !e.allowedExt(path) {
		return types.WorkspaceFile{}, false, nil
	}
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return types.WorkspaceFile{}, false, nil
	}
	file := e.workspaceFile(path, rel, info)
	if info.Size() > e.maxSize {
		return file, false, &types.SkippedFileError{Path: rel, Size: info.Size(), Limit: e.maxSize}
	}
	return file, true, nil
}

// Excluded reports whether a slash separated relative path matches any
// exclude pattern, either as a whole or by one of its segments.
func (e *Enumerator) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	segments := strings.Split(rel, "/")
	for _, pattern := range e.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if strings.Contains(pattern, "/") {
			continue
		}
		for _, seg := range segments {
			if ok, _ := doublestar.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// RelPath converts an absolute path to the slash separated workspace path
func (e *Enumerator) RelPath(path string) (string, error) {
	return e.rel(path)
}

// AbsPath converts a workspace relative path to an absolute path
func (e *Enumerator) AbsPath(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

func (e *Enumerator) rel(path string) (string, error) {
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.New("path outside workspace")
	}
	return rel, nil
}

func (e *Enumerator) allowedExt(path string) bool {
	if e.extensions == nil {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return e.extensions[ext]
}

func (e *Enumerator) workspaceFile(path, rel string, info fs.FileInfo) types.WorkspaceFile {
	return types.WorkspaceFile{
		Path:     path,
		RelPath:  rel,
		Language: LanguageFor(path),
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}
}
