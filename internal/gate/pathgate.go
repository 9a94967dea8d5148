// Package gate holds the cheap request checks that run before any
// authentication or upstream work: the subpath allow-list and caller IP
// attribution.
package gate

import "github.com/tjfontaine/llm-mediator/internal/openai"

// AllowedPathSet is an immutable set of upstream subpaths. Membership is an
// exact string comparison: no case folding and no slash trimming.
type AllowedPathSet struct {
	paths map[string]struct{}
}

// NewAllowedPathSet builds a set from the given subpaths.
func NewAllowedPathSet(paths ...string) AllowedPathSet {
	set := AllowedPathSet{paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		set.paths[p] = struct{}{}
	}
	return set
}

// OpenAIPaths returns the allow-list derived from the OpenAI path enumeration.
func OpenAIPaths() AllowedPathSet {
	enum := openai.Paths()
	paths := make([]string, len(enum))
	for i, p := range enum {
		paths[i] = string(p)
	}
	return NewAllowedPathSet(paths...)
}

// Contains reports whether subpath is allow-listed.
func (s AllowedPathSet) Contains(subpath string) bool {
	_, ok := s.paths[subpath]
	return ok
}

// Len returns the number of allow-listed subpaths.
func (s AllowedPathSet) Len() int {
	return len(s.paths)
}
