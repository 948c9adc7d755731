// Package backend implements the Back-end Dispatch contract: a single
// "build an SRPM into an output directory" method, with four
// implementations (null/mock/container/remote). Modeled as a tagged
// variant via a narrow interface, grounded on pkg/container/runner.go's
// Runner/Debugger interface split.
package backend

import (
	"context"
	"time"

	"github.com/da-x/spectree/pkg/identity"
	"github.com/da-x/spectree/pkg/spec"
)

// Request is the common input to every back-end's Build method.
type Request struct {
	BuildKey     identity.BuildKey
	Source       *spec.Source
	SrpmPath     string
	DepsDir      string // empty when the source has no dependencies
	BuildDir     string
	Params       []string
	Network      bool
	DebugPrepare bool // container back-end only
}

// Backend builds one SRPM into a build directory. Any failure is a fatal
// per-task error, per the base spec's §4.6 contract.
type Backend interface {
	Name() string
	Build(ctx context.Context, req Request) error
}

// Null always succeeds after a short, fixed delay. Used for exercising the
// dependency graph and scheduler without any real toolchain installed.
type Null struct{}

func (Null) Name() string { return "null" }

func (Null) Build(ctx context.Context, req Request) error {
	select {
	case <-time.After(100 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
