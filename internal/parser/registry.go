package parser

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and query for a language.
type LanguageSpec struct {
	Language *sitter.Language
	// Query captures top-level definitions. It must use @chunk for the outer
	// node and may use @name for the identifier.
	Query string
}

// Registry maps language names to tree-sitter specs
type Registry struct {
	mu    sync.RWMutex
	langs map[string]*LanguageSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{langs: make(map[string]*LanguageSpec)}
}

// Register adds or replaces the spec for a language
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[name] = spec
}

// Lookup returns the spec for a language, or nil
func (r *Registry) Lookup(name string) *LanguageSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.langs[name]
}

// Has reports whether a language is registered
func (r *Registry) Has(name string) bool {
	return r.Lookup(name) != nil
}

// Languages returns the registered language names
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.langs))
	for name := range r.langs {
		names = append(names, name)
	}
	return names
}
