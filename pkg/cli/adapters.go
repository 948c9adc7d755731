package cli

import (
	"context"

	"github.com/da-x/spectree/pkg/backend"
	"github.com/da-x/spectree/pkg/container"
	"github.com/da-x/spectree/pkg/remote"
)

// containerBackend adapts backend.Request to container.Request, satisfying
// backend.Backend. The two Request types are declared independently (see
// container.Request's doc comment) to avoid an import cycle between
// package backend and package container; this is the single place that
// bridges them.
type containerBackend struct {
	builder      *container.Builder
	targetOS     string
	debugPrepare bool
}

func (b *containerBackend) Name() string { return b.builder.Name() }

func (b *containerBackend) Build(ctx context.Context, req backend.Request) error {
	return b.builder.Build(ctx, container.Request{
		BuildKey:     req.BuildKey,
		Source:       req.Source,
		SrpmPath:     req.SrpmPath,
		DepsDir:      req.DepsDir,
		BuildDir:     req.BuildDir,
		Params:       req.Params,
		Network:      req.Network,
		TargetOS:     b.targetOS,
		DebugPrepare: b.debugPrepare,
	})
}

// remoteBackend adapts backend.Request to remote.Request, satisfying
// backend.Backend, for the same import-cycle-avoidance reason.
type remoteBackend struct {
	coord    *remote.Coordinator
	targetOS string
}

func (b *remoteBackend) Name() string { return b.coord.Name() }

func (b *remoteBackend) Build(ctx context.Context, req backend.Request) error {
	return b.coord.Build(ctx, remote.Request{
		BuildKey: req.BuildKey,
		Source:   req.Source,
		SrpmPath: req.SrpmPath,
		BuildDir: req.BuildDir,
		Params:   req.Params,
		TargetOS: b.targetOS,
	})
}
