// Package spec defines the declarative build specification: the mapping of
// source keys to source records, their dependency modifiers, and the
// textual ${NAME} substitution applied to git fields.
package spec

import "fmt"

// SourceKey is the opaque, unique identity of a source within a SpecTree.
// It doubles as a filesystem path component and as a map key throughout
// the engine.
type SourceKey = string

// SourceKind discriminates the two source record shapes. Srpm is accepted
// by the parser but rejected at build time: it is a reserved, unimplemented
// variant (see SPEC_FULL.md).
type SourceKind int

const (
	KindGit SourceKind = iota
	KindSrpm
)

// GitSource describes a git-backed source. Exactly one of URL or Path must
// be set. Revision, when present, pins the source to a specific commit and
// relaxes the usual "worktree must be clean" requirement.
type GitSource struct {
	URL      string
	Path     string
	Subpath  string
	Revision string
}

// SrpmSource is the reserved, unimplemented source type.
type SrpmSource struct {
	Path string
}

// Source is one entry of a SpecTree.
type Source struct {
	Kind         SourceKind
	Git          *GitSource
	Srpm         *SrpmSource
	Dependencies []string
	Params       []string
	Network      bool
}

// Dependency is a parsed dependency reference: a target SourceKey plus the
// OnlyDirect modifier (spelled `~key` in the raw spec text).
type Dependency struct {
	Key        SourceKey
	OnlyDirect bool
}

// ParseDependency parses one raw dependency string. A leading '~' marks the
// dependency OnlyDirect and is stripped from the key.
func ParseDependency(raw string) Dependency {
	if len(raw) > 0 && raw[0] == '~' {
		return Dependency{Key: raw[1:], OnlyDirect: true}
	}
	return Dependency{Key: raw}
}

// Dependencies parses every raw dependency string on the source, in
// declared order.
func (s *Source) ParsedDependencies() []Dependency {
	out := make([]Dependency, len(s.Dependencies))
	for i, raw := range s.Dependencies {
		out[i] = ParseDependency(raw)
	}
	return out
}

// SpecTree is the full parsed specification: every declared source, keyed
// by its SourceKey.
type SpecTree struct {
	Sources map[SourceKey]*Source
}

// Validate checks that every dependency reference resolves to a declared
// source. It does not check for cycles; that is the Dependency Resolver's
// job (package resolve), since cycle detection requires the DFS traversal
// state the resolver already builds.
func (t *SpecTree) Validate() error {
	for key, src := range t.Sources {
		for _, dep := range src.ParsedDependencies() {
			if _, ok := t.Sources[dep.Key]; !ok {
				return fmt.Errorf("source %q: unknown dependency %q", key, dep.Key)
			}
		}
	}
	return nil
}

// Substitute applies ${NAME} replacement to a source's Git fields in place,
// using the source's own key as the substitution value. Grounded on
// pkg/config/substitution.go's strings.Replacer-based field rewriting.
func Substitute(key SourceKey, g *GitSource) *GitSource {
	if g == nil {
		return nil
	}
	r := newNameReplacer(key)
	return &GitSource{
		URL:      r.Replace(g.URL),
		Path:     r.Replace(g.Path),
		Subpath:  r.Replace(g.Subpath),
		Revision: g.Revision,
	}
}
