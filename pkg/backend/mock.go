package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/da-x/spectree/pkg/runner"
)

// Mock shells out to `mock`, the local chroot builder. Grounded on the
// base spec's §4.6.2 contract.
type Mock struct {
	Runner runner.Runner
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Build(ctx context.Context, req Request) error {
	cmd := fmt.Sprintf("mock --resultdir %s", shellQuote(req.BuildDir+"/build"))
	if req.DepsDir != "" {
		cmd += fmt.Sprintf(" --addrepo %s", shellQuote(req.DepsDir))
	}
	cmd += " " + shellQuote(req.SrpmPath)
	if len(req.Params) > 0 {
		cmd += " " + strings.Join(quoteAll(req.Params), " ")
	}

	res, err := m.Runner.Run(ctx, runner.Spec{Command: cmd, WorkingDir: req.BuildDir})
	if err != nil {
		return fmt.Errorf("mock build failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("mock build failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func quoteAll(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = shellQuote(a)
	}
	return out
}
