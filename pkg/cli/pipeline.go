package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/time/rate"

	"github.com/da-x/spectree/pkg/backend"
	"github.com/da-x/spectree/pkg/container"
	"github.com/da-x/spectree/pkg/identity"
	"github.com/da-x/spectree/pkg/remote"
	"github.com/da-x/spectree/pkg/resolve"
	"github.com/da-x/spectree/pkg/runner"
	"github.com/da-x/spectree/pkg/spec"
	"github.com/da-x/spectree/pkg/srpm"
	"github.com/da-x/spectree/pkg/vcs"
	"github.com/da-x/spectree/pkg/workspace"
)

// pipeline bundles the shared, precomputed identity of every reachable
// source plus the collaborators a per-source task needs. Built once by
// prepareRun, then closed over by the scheduler.TaskFunc it returns.
type pipeline struct {
	tree         *spec.SpecTree
	ws           *workspace.Manager
	vcsAdapter   vcs.Adapter
	runner       runner.Runner
	srpmGen      *srpm.Generator
	be           backend.Backend
	opts         BuildOptions
	targetOS     string
	sourceHashes map[spec.SourceKey]string
	revisions    map[spec.SourceKey]string
	buildHashes  map[spec.SourceKey]string
}

// prepareRun implements the base spec's §4.9 steps 1-3: it sequentially
// materializes (clone/update) and hashes every source reachable from
// roots, then computes every BuildHash, entirely before any scheduler
// task is spawned.
func prepareRun(ctx context.Context, tree *spec.SpecTree, roots []spec.SourceKey, opts BuildOptions) (*pipeline, error) {
	log := clog.FromContext(ctx)

	reachable := map[spec.SourceKey]bool{}
	for _, root := range roots {
		set, err := resolve.ResolveDependencies(tree, root)
		if err != nil {
			return nil, fmt.Errorf("resolving dependencies of %s: %w", root, err)
		}
		for k := range set {
			reachable[k] = true
		}
		reachable[root] = true
	}

	r := runner.NewHost()
	vcsAdapter := vcs.NewGitAdapter(r)
	ws := workspace.New(opts.WorkspaceDir, r)

	targetOS := opts.TargetOS
	if targetOS == "" {
		osRelease, err := os.ReadFile("/etc/os-release")
		if err == nil {
			if detected, err := srpm.DetectBaseOS(string(osRelease)); err == nil {
				targetOS = detected
			}
		}
	}

	sourceHashes := map[spec.SourceKey]string{}
	revisions := map[spec.SourceKey]string{}

	keys := make([]spec.SourceKey, 0, len(reachable))
	for k := range reachable {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		src, ok := tree.Sources[key]
		if !ok {
			return nil, fmt.Errorf("source %q not found", key)
		}
		if src.Kind != spec.KindGit {
			return nil, fmt.Errorf("source %q: srpm-kind sources are not buildable (reserved, unimplemented)", key)
		}

		g := spec.Substitute(key, src.Git)
		dest := ws.SourcesDir(key)

		url := g.URL
		if url == "" {
			url = g.Path
		}
		log.Info("materializing source", "source", key, "url", url)
		if err := vcsAdapter.CloneOrUpdate(ctx, url, dest); err != nil {
			return nil, fmt.Errorf("cloning/updating %s: %w", key, err)
		}

		res, err := identity.ComputeSourceHash(ctx, vcsAdapter, dest, g)
		if err != nil {
			return nil, fmt.Errorf("hashing source %s: %w", key, err)
		}
		sourceHashes[key] = res.SourceHash
		revisions[key] = res.Revision
	}

	buildHashes, err := identity.ComputeAllBuildHashes(tree, sourceHashes)
	if err != nil {
		return nil, fmt.Errorf("computing build hashes: %w", err)
	}

	be, err := newBackend(r, ws, opts, targetOS)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		tree:         tree,
		ws:           ws,
		vcsAdapter:   vcsAdapter,
		runner:       r,
		srpmGen:      srpm.New(r),
		be:           be,
		opts:         opts,
		targetOS:     targetOS,
		sourceHashes: sourceHashes,
		revisions:    revisions,
		buildHashes:  buildHashes,
	}, nil
}

func newBackend(r runner.Runner, ws *workspace.Manager, opts BuildOptions, targetOS string) (backend.Backend, error) {
	switch opts.Backend {
	case BackendNull, "":
		return backend.Null{}, nil
	case BackendMock:
		return &backend.Mock{Runner: r}, nil
	case BackendDocker:
		return &containerBackend{builder: container.New(r), targetOS: targetOS, debugPrepare: opts.DebugPrepare}, nil
	case BackendRemote:
		if opts.CoprProject == "" {
			return nil, fmt.Errorf("--copr-project is required for the remote backend")
		}
		stateFile := opts.CoprStateFile
		if stateFile == "" {
			stateFile = filepath.Join(ws.Root, "copr-state.yaml")
		}
		coord := remote.New(r, srpm.New(r), remote.NewStateStore(stateFile), opts.CoprProject, opts.CoprExcludeChroots)
		coord.AssumeBuiltPattern = opts.CoprAssumeBuilt
		if opts.CoprSubmitRate > 0 {
			coord.Ratelimiter = rate.NewLimiter(rate.Limit(opts.CoprSubmitRate), 1)
		}
		if opts.CoprPoll {
			coord.PollMode = true
			interval := opts.CoprPollInterval
			if interval <= 0 {
				interval = 10
			}
			coord.PollLimiter = rate.NewLimiter(rate.Every(time.Duration(interval*float64(time.Second))), 1)
		}
		return &remoteBackend{coord: coord}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
