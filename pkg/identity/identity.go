// Package identity computes SourceHash and BuildHash: the two content
// identities the rest of the engine uses for cache keys and directory
// names. Grounded on original_source/src/main.rs's calc_source_hash and
// calculate_build_hash; the canonical serialization choice documented here
// resolves the base spec's §9 open question (see DESIGN.md).
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/da-x/spectree/pkg/spec"
)

// DepHash is one dependency's contribution to a BuildHash computation: its
// key and its own, already-computed BuildHash. The OnlyDirect modifier is
// deliberately absent from this type — the base spec requires it be mixed
// in as a fixed placeholder, never as the dependency's own modifier, so
// that a source's identity depends on *what* it depends on, not on *how*
// some more-distant dependent happened to traverse it.
type DepHash struct {
	Key  spec.SourceKey
	Hash string
}

// BuildKey is the filesystem- and remote-state-facing identity of a build:
// its source key and its BuildHash, formatted "<key>-<hash>".
type BuildKey struct {
	SourceKey spec.SourceKey
	Hash      string
}

func (k BuildKey) String() string {
	return fmt.Sprintf("%s-%s", k.SourceKey, k.Hash)
}

// ComputeBuildHash hashes, in order: the source key, the source hash, a
// canonical serialization of the dependency set (sorted by key, each paired
// with a fixed `false` OnlyDirect placeholder as the base spec mandates),
// and the params list.
//
// Canonical serialization: each component is written as a length-prefixed
// field (a decimal byte count, a colon, then the bytes themselves, akin to
// bencode/netstring framing) so that no delimiter collision between, say,
// a dependency key containing a literal separator character and the
// hash-engine's own framing can produce two distinct inputs with the same
// byte stream. This is an explicit, documented departure from the Rust
// original's use of its Debug-formatted in-memory representation (see
// DESIGN.md); it is not expected to be byte-compatible with caches built
// by that implementation, which the base spec explicitly allows as long
// as the new scheme is deterministic and documented.
func ComputeBuildHash(sourceKey spec.SourceKey, sourceHash string, deps []DepHash, params []string) string {
	sorted := make([]DepHash, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	h := sha256.New()
	writeField(h, sourceKey)
	writeField(h, sourceHash)

	writeField(h, fmt.Sprintf("%d", len(sorted)))
	for _, d := range sorted {
		writeField(h, d.Key)
		writeField(h, d.Hash)
		writeField(h, "false") // OnlyDirect placeholder, always fixed
	}

	writeField(h, fmt.Sprintf("%d", len(params)))
	for _, p := range params {
		writeField(h, p)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	fmt.Fprintf(h, "%d:%s,", len(s), s)
}

// NormalizeDependencyOrder returns the input dependency slice re-ordered so
// that callers who only care about hash stability (not about preserving
// declared order elsewhere) can assert on a canonical form in tests.
func NormalizeDependencyOrder(deps []string) []string {
	out := append([]string(nil), deps...)
	sort.Strings(out)
	return out
}
