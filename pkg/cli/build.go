package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/da-x/spectree/pkg/identity"
	"github.com/da-x/spectree/pkg/resolve"
	"github.com/da-x/spectree/pkg/scheduler"
	"github.com/da-x/spectree/pkg/spec"
	"github.com/da-x/spectree/pkg/workspace"
)

var tracer = otel.Tracer("github.com/da-x/spectree/pkg/cli")

// RunBuild parses the spec file, computes every reachable source's
// identity, runs the scheduler over it, and (if configured) publishes the
// root set's outputs to a user-facing directory.
func RunBuild(ctx context.Context, opts BuildOptions) error {
	log := clog.FromContext(ctx)

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading env file %s: %w", opts.EnvFile, err)
		}
	}

	if len(opts.Roots) == 0 {
		return fmt.Errorf("at least one root source key is required")
	}

	data, err := os.ReadFile(opts.SpecFile)
	if err != nil {
		return fmt.Errorf("reading spec file %s: %w", opts.SpecFile, err)
	}
	tree, err := spec.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing spec file %s: %w", opts.SpecFile, err)
	}
	if err := tree.Validate(); err != nil {
		return fmt.Errorf("invalid spec: %w", err)
	}

	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "spectree.build", trace.WithAttributes(attribute.String("spectree.run_id", runID)))
	defer span.End()
	log = log.With("run_id", runID)
	ctx = clog.WithLogger(ctx, log)

	log.Info("resolving and hashing reachable sources", "roots", opts.Roots)
	p, err := prepareRun(ctx, tree, opts.Roots, opts)
	if err != nil {
		return err
	}

	sched := &scheduler.Scheduler{
		Tree:  tree,
		Roots: opts.Roots,
		Task:  p.buildOne,
	}

	log.Info("running scheduler")
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("build run failed: %w", err)
	}

	if opts.OutputDir != "" {
		if err := publishOutputs(ctx, p, opts.Roots, opts.OutputDir); err != nil {
			return fmt.Errorf("publishing outputs: %w", err)
		}
	}

	log.Info("build complete")
	return nil
}

// publishOutputs hardlink-copies builds/<BuildKey>/ for every root and
// every root's transitive dependency into outputDir, per the base spec's
// §4.9 step 8.
func publishOutputs(ctx context.Context, p *pipeline, roots []spec.SourceKey, outputDir string) error {
	log := clog.FromContext(ctx)

	publish := map[spec.SourceKey]bool{}
	for _, root := range roots {
		publish[root] = true
		deps, err := resolve.ResolveDependencies(p.tree, root)
		if err != nil {
			return err
		}
		for dep := range deps {
			publish[dep] = true
		}
	}

	for key := range publish {
		buildKey := identity.BuildKey{SourceKey: key, Hash: p.buildHashes[key]}
		src := p.ws.BuildDir(buildKey)
		dst := filepath.Join(outputDir, buildKey.String())
		log.Info("publishing output", "source", key, "to", dst)
		if err := workspace.HardlinkCopyDir(src, dst); err != nil {
			return fmt.Errorf("publishing %s: %w", buildKey.String(), err)
		}
	}
	return nil
}
