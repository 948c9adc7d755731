// Command spectree resolves, schedules, and builds RPM packages from a
// declarative spec of git (or pre-built SRPM) sources, against one of
// four back-ends (null, mock, docker, remote/Copr).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"

	"github.com/da-x/spectree/pkg/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		clog.FromContext(ctx).Error("spectree failed", "error", err)
		os.Exit(1)
	}
}
