package identity

import (
	"context"
	"fmt"

	"github.com/da-x/spectree/pkg/spec"
	"github.com/da-x/spectree/pkg/vcs"
)

// SourceHashResult carries a computed SourceHash plus the git revision it
// was resolved from, if any — the latter feeds directly into
// build_info.yaml's git_revision field.
type SourceHashResult struct {
	SourceHash string
	Revision   string
}

// ComputeSourceHash implements the base spec's §4.3 SourceHash rules:
//   - explicit revision: resolve it, then take the tree hash at that
//     revision; the worktree need not be clean.
//   - no revision: require a clean worktree, then take HEAD's tree hash.
//
// worktreePath is the live clone's path (workspace/sources/<key>/);
// ${NAME} substitution must already have been applied to g by the caller.
func ComputeSourceHash(ctx context.Context, adapter vcs.Adapter, worktreePath string, g *spec.GitSource) (SourceHashResult, error) {
	if g.Revision != "" {
		rev, err := adapter.ResolveRevision(ctx, worktreePath, g.Revision)
		if err != nil {
			return SourceHashResult{}, fmt.Errorf("resolving revision %q: %w", g.Revision, err)
		}
		h, err := adapter.TreeHashAt(ctx, worktreePath, rev, g.Subpath)
		if err != nil {
			return SourceHashResult{}, fmt.Errorf("hashing tree at %s: %w", rev, err)
		}
		return SourceHashResult{SourceHash: h, Revision: rev}, nil
	}

	clean, err := adapter.IsClean(ctx, worktreePath)
	if err != nil {
		return SourceHashResult{}, fmt.Errorf("checking worktree cleanliness: %w", err)
	}
	if !clean {
		return SourceHashResult{}, fmt.Errorf("worktree %s is dirty and no revision was pinned", worktreePath)
	}
	h, err := adapter.TreeHash(ctx, worktreePath, g.Subpath)
	if err != nil {
		return SourceHashResult{}, fmt.Errorf("hashing HEAD tree: %w", err)
	}
	rev, err := adapter.ResolveRevision(ctx, worktreePath, "HEAD")
	if err != nil {
		return SourceHashResult{}, fmt.Errorf("resolving HEAD: %w", err)
	}
	return SourceHashResult{SourceHash: h, Revision: rev}, nil
}
