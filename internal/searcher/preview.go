package searcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrPathOutsideRoot = errors.New("path escapes workspace root")
	ErrLineOutOfRange  = errors.New("line out of range")
)

const DefaultPreviewContext = 5

// FilePreview renders contextLines lines on either side of line (1-based)
// from a file under root. Each line is prefixed with its right aligned
// number; the target line is marked with '>'.
func FilePreview(root, relPath string, line, contextLines int) (string, error) {
	path, err := confine(root, relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", relPath, err)
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if line < 1 || line > len(lines) {
		return "", fmt.Errorf("%w: %d not in [1, %d]", ErrLineOutOfRange, line, len(lines))
	}
	contextLines = max(contextLines, 0)

	start := max(line-contextLines, 1)
	end := min(line+contextLines, len(lines))
	width := len(strconv.Itoa(end))

	var b strings.Builder
	for n := start; n <= end; n++ {
		marker := "  "
		if n == line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%*d | %s\n", marker, width, n, lines[n-1])
	}
	return b.String(), nil
}

// confine resolves relPath under root and rejects anything that leaves it,
// including through symlinks.
func confine(root, relPath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}

	path := filepath.FromSlash(relPath)
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	rel, err := filepath.Rel(absRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, relPath)
	}
	return path, nil
}
