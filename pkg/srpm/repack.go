package srpm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/da-x/spectree/pkg/runner"
)

// RepackWithParams extracts srpmPath into a scratch "repack" directory
// under buildDir, rewrites its single spec file per ModifySpecForParams,
// and repacks it via rpmbuild mode. Used by the Remote Build Coordinator,
// since the remote service has no out-of-band way to receive params: they
// must be baked into the SRPM itself before submission. Grounded on
// original_source/src/main.rs's repack_srpm_with_params.
func (g *Generator) RepackWithParams(ctx context.Context, srpmPath, buildDir string, params []string) (string, error) {
	repackDir := filepath.Join(buildDir, "repack")
	if err := os.RemoveAll(repackDir); err != nil {
		return "", fmt.Errorf("clearing %s: %w", repackDir, err)
	}
	if err := os.MkdirAll(repackDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", repackDir, err)
	}
	defer os.RemoveAll(repackDir)

	extractCmd := fmt.Sprintf(`rpm -i --define "_topdir %s" %s`, shellQuote(repackDir), shellQuote(srpmPath))
	res, err := g.Runner.Run(ctx, runner.Spec{Command: extractCmd, WorkingDir: repackDir})
	if err != nil || res.ExitCode != 0 {
		return "", fmt.Errorf("extracting srpm %s: %w (stderr: %s)", srpmPath, err, res.Stderr)
	}

	specPath, err := findSingleSpec(repackDir)
	if err != nil {
		return "", fmt.Errorf("finding spec in extracted srpm: %w", err)
	}
	content, err := os.ReadFile(specPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", specPath, err)
	}
	if err := os.WriteFile(specPath, []byte(ModifySpecForParams(string(content), params)), 0o644); err != nil {
		return "", fmt.Errorf("writing modified %s: %w", specPath, err)
	}

	return g.Generate(ctx, ModeRpmbuild, repackDir, filepath.Join(buildDir, "srpm-params"), "", nil)
}
