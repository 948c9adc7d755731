package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"

	"github.com/da-x/spectree/pkg/backend"
	"github.com/da-x/spectree/pkg/identity"
	"github.com/da-x/spectree/pkg/resolve"
	"github.com/da-x/spectree/pkg/spec"
	"github.com/da-x/spectree/pkg/srpm"
)

// isLocalBackend reports whether deps/ assembly + createrepo_c should run
// in the workspace (true for null/mock, false for docker/remote, which
// assemble their own repodata per the base spec's §4.4 step 3 and §4.7
// phase 3).
func (p *pipeline) isLocalBackend() bool {
	switch p.opts.Backend {
	case BackendDocker, BackendRemote:
		return false
	default:
		return true
	}
}

// buildOne implements the base spec's §4.4 per-task build sequence for one
// source, given its already-computed identity. It is the body every
// scheduler.TaskFunc invocation runs after its dependencies have signaled
// success.
func (p *pipeline) buildOne(ctx context.Context, key spec.SourceKey) error {
	log := clog.FromContext(ctx).With("source", key)

	src := p.tree.Sources[key]
	buildKey := identity.BuildKey{SourceKey: key, Hash: p.buildHashes[key]}

	if p.ws.AlreadyBuilt(buildKey) {
		log.Info("already built, skipping", "build_key", buildKey.String())
		return nil
	}

	depSet, err := resolve.ResolveDependencies(p.tree, key)
	if err != nil {
		return fmt.Errorf("resolving dependencies of %s: %w", key, err)
	}
	var deps []spec.SourceKey
	for dep := range depSet {
		deps = append(deps, dep)
	}

	if err := p.ws.Prepare(ctx, buildKey, src, p.revisions[key], deps, p.isLocalBackend()); err != nil {
		return fmt.Errorf("preparing workspace for %s: %w", key, err)
	}

	workDir, err := p.materializedSourceDir(ctx, key)
	if err != nil {
		return err
	}

	buildDir := p.ws.TmpBuildDir(buildKey)
	srpmOutDir := filepath.Join(buildDir, "srpm")
	srpmPath, err := p.srpmGen.Generate(ctx, srpm.ModeFedpkg, workDir, srpmOutDir, p.targetOS, src.Params)
	if err != nil {
		return fmt.Errorf("generating srpm for %s: %w", key, err)
	}

	depsDir := ""
	if len(deps) > 0 && p.isLocalBackend() {
		depsDir = filepath.Join(buildDir, "deps")
	}

	req := backend.Request{
		BuildKey:     buildKey,
		Source:       src,
		SrpmPath:     srpmPath,
		DepsDir:      depsDir,
		BuildDir:     buildDir,
		Params:       src.Params,
		Network:      src.Network,
		DebugPrepare: p.opts.DebugPrepare,
	}
	log.Info("dispatching to backend", "backend", p.be.Name(), "build_key", buildKey.String())
	if err := p.be.Build(ctx, req); err != nil {
		return fmt.Errorf("backend %s failed for %s: %w", p.be.Name(), key, err)
	}

	if err := p.ws.Promote(buildKey); err != nil {
		return fmt.Errorf("promoting build %s: %w", buildKey.String(), err)
	}
	log.Info("build complete", "build_key", buildKey.String())
	return nil
}

// materializedSourceDir returns the directory the SRPM generator should
// read from: the exported pinned revision (cached, by revision) when one
// is known, otherwise the live clone path.
func (p *pipeline) materializedSourceDir(ctx context.Context, key spec.SourceKey) (string, error) {
	src := p.tree.Sources[key]
	g := spec.Substitute(key, src.Git)
	revision := p.revisions[key]
	cloneDir := p.ws.SourcesDir(key)

	if g.Revision == "" {
		return cloneDir, nil
	}

	exportDir := p.ws.SourcesRevisionDir(key, revision)
	if _, err := os.Stat(exportDir); err == nil {
		return exportDir, nil
	}
	if err := p.vcsAdapter.Export(ctx, cloneDir, revision, exportDir, g.Subpath); err != nil {
		return "", fmt.Errorf("exporting %s at %s: %w", key, revision, err)
	}
	srpm.FetchRemoteSources(ctx, p.runner, exportDir)
	return exportDir, nil
}
