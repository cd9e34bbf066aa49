package enumerator

import (
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	"go":    "go",
	"py":    "python",
	"pyi":   "python",
	"js":    "javascript",
	"jsx":   "javascript",
	"mjs":   "javascript",
	"cjs":   "javascript",
	"ts":    "typescript",
	"tsx":   "tsx",
	"java":  "java",
	"rs":    "rust",
	"rb":    "ruby",
	"c":     "c",
	"h":     "c",
	"cpp":   "cpp",
	"cc":    "cpp",
	"hpp":   "cpp",
	"cs":    "csharp",
	"php":   "php",
	"kt":    "kotlin",
	"swift": "swift",
	"scala": "scala",
	"sh":    "shell",
	"sql":   "sql",
	"md":    "markdown",
}

// LanguageFor maps a file path to a language name by extension.
// Unknown extensions map to "text".
func LanguageFor(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "text"
}
