package spec

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// rawSourceType mirrors the union of fields legal under `type:` for either
// source kind. Keeping one strict struct (rather than trying two different
// strict decodes) means KnownFields(true) rejects any field name that
// belongs to neither kind, while kind-specific required-field checks still
// run afterward.
type rawSourceType struct {
	Source   string `yaml:"source"`
	URL      string `yaml:"url"`
	Path     string `yaml:"path"`
	Subpath  string `yaml:"subpath"`
	Revision string `yaml:"revision"`
}

type rawSource struct {
	Type         rawSourceType `yaml:"type"`
	Dependencies []string      `yaml:"dependencies"`
	Params       []string      `yaml:"params"`
	Network      bool          `yaml:"network"`
}

// Parse decodes the declarative spec file. Unknown fields at any level are
// a parse error: the document is first decoded into a generic yaml.Node,
// then re-marshalled and decoded again into the strict target type with
// KnownFields(true) set, since yaml.Node.Decode itself has no KnownFields
// knob. Grounded on pkg/config/config.go's ParseConfiguration.
func Parse(data []byte) (*SpecTree, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		return nil, fmt.Errorf("parsing spec: %w", err)
	}

	normalized, err := yaml.Marshal(&root)
	if err != nil {
		return nil, fmt.Errorf("normalizing spec: %w", err)
	}

	raw := map[string]rawSource{}
	dec := yaml.NewDecoder(bytes.NewReader(normalized))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing spec: %w", err)
	}

	tree := &SpecTree{Sources: make(map[SourceKey]*Source, len(raw))}
	for key, rs := range raw {
		src, err := toSource(key, rs)
		if err != nil {
			return nil, err
		}
		tree.Sources[key] = src
	}

	if err := tree.Validate(); err != nil {
		return nil, err
	}
	return tree, nil
}

func toSource(key string, rs rawSource) (*Source, error) {
	src := &Source{
		Dependencies: rs.Dependencies,
		Params:       rs.Params,
		Network:      rs.Network,
	}

	switch rs.Type.Source {
	case "git":
		src.Kind = KindGit
		hasURL := rs.Type.URL != ""
		hasPath := rs.Type.Path != ""
		if hasURL == hasPath {
			return nil, fmt.Errorf("source %q: exactly one of url or path must be set for a git source", key)
		}
		src.Git = &GitSource{
			URL:      rs.Type.URL,
			Path:     rs.Type.Path,
			Subpath:  rs.Type.Subpath,
			Revision: rs.Type.Revision,
		}
	case "srpm":
		src.Kind = KindSrpm
		if rs.Type.Path == "" {
			return nil, fmt.Errorf("source %q: path is required for an srpm source", key)
		}
		src.Srpm = &SrpmSource{Path: rs.Type.Path}
	case "":
		return nil, fmt.Errorf("source %q: type.source is required", key)
	default:
		return nil, fmt.Errorf("source %q: unknown source type %q", key, rs.Type.Source)
	}

	return src, nil
}

// SortedKeys returns every source key in the tree, sorted, for deterministic
// iteration (logging, scheduling order, hash triple construction).
func (t *SpecTree) SortedKeys() []string {
	keys := make([]string, 0, len(t.Sources))
	for k := range t.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
