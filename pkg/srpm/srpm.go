// Package srpm implements the SRPM Generator: producing a source RPM from
// a prepared working directory in either fedpkg or rpmbuild mode, the
// parameter-repack path, and base-OS detection. ${NAME} substitution is
// done by package spec before paths reach this package.
// Grounded on original_source/src/main.rs's generate_srpm,
// repack_srpm_with_params, modify_spec_for_params, and detect_base_os.
package srpm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/da-x/spectree/pkg/runner"
)

// Mode selects which external tool generates the SRPM.
type Mode int

const (
	// ModeFedpkg shells `fedpkg --release <os> srpm ...`. Used for the
	// normal local/container/remote build path.
	ModeFedpkg Mode = iota
	// ModeRpmbuild shells `rpmbuild -bs ...`. Used only by the remote
	// repack path, against an already-extracted, already-rewritten spec.
	ModeRpmbuild
)

// Generator produces SRPMs.
type Generator struct {
	Runner runner.Runner
}

func New(r runner.Runner) *Generator { return &Generator{Runner: r} }

// Generate runs the configured mode inside workDir, writing the resulting
// SRPM into outDir, and returns the path to the single resulting
// *.src.rpm. Zero or multiple results is fatal. outDir need not be inside
// workDir — the remote repack path writes it to a sibling directory so
// the output survives the scratch working directory's cleanup.
func (g *Generator) Generate(ctx context.Context, mode Mode, workDir, outDir, targetOS string, params []string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", outDir, err)
	}

	var cmd string
	switch mode {
	case ModeFedpkg:
		cmd = g.fedpkgCommand(workDir, outDir, targetOS, params)
	case ModeRpmbuild:
		specPath, err := findSingleSpec(workDir)
		if err != nil {
			return "", err
		}
		cmd = fmt.Sprintf(`rpmbuild -bs --define "_topdir %s" --define "_srcrpmdir %s" %s`,
			shellQuote(workDir), shellQuote(outDir), shellQuote(specPath))
	default:
		return "", fmt.Errorf("unknown srpm generation mode %d", mode)
	}

	res, err := g.Runner.Run(ctx, runner.Spec{Command: cmd, WorkingDir: workDir})
	if err != nil {
		return "", fmt.Errorf("generating srpm: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("srpm generation failed (exit %d): %s", res.ExitCode, res.Stderr)
	}

	return findSingleSrpm(outDir)
}

// fedpkgCommand builds the fedpkg invocation. RHEL-style layout (a
// SOURCES/ directory next to SPECS/) adds explicit _sourcedir/_specdir
// defines; Fedora layout omits them.
func (g *Generator) fedpkgCommand(workDir, outDir, targetOS string, params []string) string {
	cmd := fmt.Sprintf(`fedpkg --release %s srpm --define "_srcrpmdir %s"`, shellQuote(targetOS), shellQuote(outDir))

	sourcesDir := filepath.Join(workDir, "SOURCES")
	specsDir := filepath.Join(workDir, "SPECS")
	if dirExists(sourcesDir) && dirExists(specsDir) {
		cmd += fmt.Sprintf(` --define "_sourcedir %s" --define "_specdir %s"`, shellQuote(sourcesDir), shellQuote(specsDir))
	}

	if len(params) > 0 {
		cmd += " -- " + strings.Join(quoteAll(params), " ")
	}
	return cmd
}

// FetchRemoteSources runs `spectool -g` over every *.spec file directly
// inside dir, to download any remote Source0/SourceN URLs the spec
// declares before SRPM generation reads the directory. Best-effort: a
// missing spectool binary or a non-zero exit is logged and does not fail
// the build, matching the fire-and-log treatment of the original fetch
// step this is grounded on.
func FetchRemoteSources(ctx context.Context, r runner.Runner, dir string) {
	log := clog.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug("skipping spectool fetch, cannot read directory", "dir", dir, "error", err)
		return
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".spec") {
			continue
		}
		specFile := e.Name()
		log.Info("running spectool -g", "spec", specFile)

		res, err := r.Run(ctx, runner.Spec{
			Command:    fmt.Sprintf("spectool -g %s", shellQuote(specFile)),
			WorkingDir: dir,
		})
		switch {
		case err != nil:
			log.Info("spectool command not available or failed", "spec", specFile, "error", err)
		case res.ExitCode != 0:
			log.Info("spectool -g completed with warnings", "spec", specFile, "stderr", res.Stderr)
		default:
			log.Debug("spectool -g succeeded", "spec", specFile)
		}
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func findSingleSrpm(dir string) (string, error) {
	return findSingleMatch(dir, ".src.rpm", "srpm")
}

func findSingleSpec(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "SPECS", "*.spec"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		matches, err = filepath.Glob(filepath.Join(dir, "*.spec"))
		if err != nil {
			return "", err
		}
	}
	return requireSingle(matches, "spec file")
}

func findSingleMatch(dir, suffix, what string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}
	var matches []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	return requireSingle(matches, what)
}

func requireSingle(matches []string, what string) (string, error) {
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s found", what)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("expected exactly one %s, found %d: %s", what, len(matches), strings.Join(matches, ", "))
	}
}

// DetectBaseOS reads /etc/os-release (from the given reader contents) and
// maps Rocky Linux 8/9/10 to epel8/epel9/epel10. Any other OS is fatal
// unless the caller has supplied an explicit override.
func DetectBaseOS(osRelease string) (string, error) {
	vals := map[string]string{}
	for _, line := range strings.Split(osRelease, "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vals[k] = strings.Trim(v, `"`)
	}

	if vals["ID"] != "rocky" {
		return "", fmt.Errorf("unsupported OS %q; pass --target-os explicitly", vals["ID"])
	}
	for _, major := range []string{"8", "9", "10"} {
		if strings.HasPrefix(vals["VERSION_ID"], major) {
			return "epel" + major, nil
		}
	}
	return "", fmt.Errorf("unsupported rocky VERSION_ID %q; pass --target-os explicitly", vals["VERSION_ID"])
}

var (
	bcondWithRe    = regexp.MustCompile(`^(%bcond_with)\s+(\S+)(.*)$`)
	bcondWithoutRe = regexp.MustCompile(`^(%bcond_without)\s+(\S+)(.*)$`)
	globalRe       = regexp.MustCompile(`^(%global)\s+(\S+)\s+(.*)$`)
)

// repackParams describes the parsed --with/--without/--define params used
// by ModifySpecForParams.
type repackParams struct {
	with    map[string]bool
	without map[string]bool
	defines map[string]string
}

func parseParams(params []string) repackParams {
	rp := repackParams{with: map[string]bool{}, without: map[string]bool{}, defines: map[string]string{}}
	for i := 0; i < len(params); i++ {
		switch params[i] {
		case "--with":
			if i+1 < len(params) {
				rp.with[params[i+1]] = true
				i++
			}
		case "--without":
			if i+1 < len(params) {
				rp.without[params[i+1]] = true
				i++
			}
		case "--define", "-D":
			if i+1 < len(params) {
				name, value, ok := strings.Cut(params[i+1], " ")
				if ok {
					rp.defines[name] = value
				}
				i++
			}
		}
	}
	return rp
}

// ModifySpecForParams rewrites bcond/global directives in specText to bake
// in the effect of params, line by line, preserving any trailing text on
// the matched line. Grounded on original_source/src/main.rs's
// modify_spec_for_params.
func ModifySpecForParams(specText string, params []string) string {
	rp := parseParams(params)

	lines := strings.Split(specText, "\n")
	for i, line := range lines {
		if m := bcondWithRe.FindStringSubmatch(line); m != nil {
			if rp.with[m[2]] {
				lines[i] = fmt.Sprintf("%%bcond_without %s%s", m[2], m[3])
			}
			continue
		}
		if m := bcondWithoutRe.FindStringSubmatch(line); m != nil {
			if rp.without[m[2]] {
				lines[i] = fmt.Sprintf("%%bcond_with %s%s", m[2], m[3])
			}
			continue
		}
		if m := globalRe.FindStringSubmatch(line); m != nil {
			if value, ok := rp.defines[m[2]]; ok {
				lines[i] = fmt.Sprintf("%%global %s %s", m[2], value)
			}
			continue
		}
	}
	return strings.Join(lines, "\n")
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
