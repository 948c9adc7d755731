// Package container implements the Container Builder: a four-phase build
// (base image, missing-deps probe, dep image, rpmbuild) run against the
// local Docker daemon. Grounded on original_source/src/docker.rs and the
// build_under_docker orchestration in original_source/src/main.rs.
package container

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	gcrname "github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/daemon"

	"github.com/da-x/spectree/pkg/identity"
	"github.com/da-x/spectree/pkg/runner"
	"github.com/da-x/spectree/pkg/spec"
)

const imagePrefix = "spectree.ops/"

// Builder implements the Container back-end.
type Builder struct {
	Runner runner.Runner
}

func New(r runner.Runner) *Builder { return &Builder{Runner: r} }

func (b *Builder) Name() string { return "docker" }

// Request mirrors the fields of backend.Request used by the container
// builder, declared locally so this package does not import package
// backend; pkg/cli adapts backend.Request to this type at the dispatch
// boundary.
type Request struct {
	BuildKey     identity.BuildKey
	Source       *spec.Source
	SrpmPath     string
	DepsDir      string
	BuildDir     string
	Params       []string
	Network      bool
	TargetOS     string
	DebugPrepare bool
}

// Build runs all four phases against req.
func (b *Builder) Build(ctx context.Context, req Request) error {
	log := clog.FromContext(ctx)

	image, err := b.ensureBaseImage(ctx, req.TargetOS)
	if err != nil {
		return fmt.Errorf("preparing base image: %w", err)
	}

	missing, err := b.probeMissingDeps(ctx, image, req)
	if err != nil {
		return fmt.Errorf("probing missing dependencies: %w", err)
	}

	if len(missing) > 0 {
		log.Info("resolved missing build dependencies", "count", len(missing), "deps", missing)
		image, err = b.ensureDepImage(ctx, image, req, missing)
		if err != nil {
			return fmt.Errorf("building dependency image: %w", err)
		}
	}

	return b.runBuild(ctx, image, req)
}

// dockerfileForOS synthesizes the base-image Dockerfile for one target OS.
// Grounded on original_source/src/docker.rs's get_builder_dockerfile_for_os.
func dockerfileForOS(os string) (string, error) {
	switch os {
	case "epel8", "epel9", "epel10":
		major := strings.TrimPrefix(os, "epel")
		return fmt.Sprintf(`FROM rockylinux:%s
RUN dnf install -y epel-release && \
    dnf install -y bash bzip2 cpio diffutils findutils gawk glibc-minimal-langpack \
        grep gzip info patch redhat-rpm-config rpm-build sed tar unzip util-linux which xz \
        createrepo_c dnf-plugins-core
`, major), nil
	default:
		return "", fmt.Errorf("unsupported OS %q", os)
	}
}

func (b *Builder) ensureBaseImage(ctx context.Context, os string) (string, error) {
	image := imagePrefix + os
	dockerfile, err := dockerfileForOS(os)
	if err != nil {
		return "", err
	}
	return image, b.ensureImage(ctx, image, dockerfile, nil)
}

// ensureImage checks for image's existence against the local Docker daemon
// via go-containerregistry's daemon package (no subprocess); whenever that
// lookup does not find the image (for any reason, including an unreachable
// daemon socket), it falls back to the literal `docker images -q`
// subprocess form the base spec documents.
func (b *Builder) ensureImage(ctx context.Context, image, dockerfileContent string, buildArgs []string) error {
	if b.imageExistsViaDaemon(image) {
		return nil
	}
	if b.imageExistsViaShell(ctx, image) {
		return nil
	}

	cmd := fmt.Sprintf("docker build %s --no-cache -t %s -", strings.Join(buildArgs, " "), shellQuote(image))
	res, err := b.Runner.Run(ctx, runner.Spec{
		Command: cmd,
		Stdin:   []byte(dockerfileContent),
	})
	if err != nil {
		return fmt.Errorf("building image %s: %w", image, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("building image %s: %s", image, res.Stderr)
	}
	return nil
}

func (b *Builder) imageExistsViaDaemon(image string) bool {
	ref, err := gcrname.ParseReference(image)
	if err != nil {
		return false
	}
	_, err = daemon.Image(ref)
	return err == nil
}

func (b *Builder) imageExistsViaShell(ctx context.Context, image string) bool {
	res, err := b.Runner.Run(ctx, runner.Spec{Command: fmt.Sprintf("docker images -q %s", shellQuote(image))})
	return err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != ""
}

var missingDepRe = regexp.MustCompile(`([^\s]+) is needed by \S+$`)

const probeScript = `
rpm -D "_topdir /workspace/build" -i /workspace/srpm/*.src.rpm

param="-br"
if ! rpmbuild -br >/dev/null 2>&1 ; then
    param="-bp"
fi

(rpmbuild ${param} -D "_topdir /workspace/build" %[1]s /workspace/build/SPECS/*.spec 2>&1 || true) \
    | grep -v '^error:' \
    | grep -E '[^ ]+ is needed by [^ ]+$'
`

func (b *Builder) probeMissingDeps(ctx context.Context, image string, req Request) ([]string, error) {
	script := fmt.Sprintf(probeScript, strings.Join(quoteAll(req.Params), " "))
	res, err := b.Runner.Run(ctx, runner.Spec{
		Command:     script,
		WorkingDir:  req.BuildDir,
		Image:       image,
		Mounts:      []runner.Mount{{Source: req.BuildDir, Target: "/workspace"}},
		NetworkNone: !req.Network,
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var deps []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		m := missingDepRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if !seen[m[1]] {
			seen[m[1]] = true
			deps = append(deps, m[1])
		}
	}
	sort.Strings(deps)
	return deps, nil
}

func (b *Builder) ensureDepImage(ctx context.Context, baseImage string, req Request, deps []string) (string, error) {
	h := sha256.Sum256([]byte(strings.Join(deps, " ")))
	depImage := fmt.Sprintf("%s:%s", baseImage, hex.EncodeToString(h[:]))

	var dockerfile string
	var buildArgs []string
	if req.DepsDir != "" {
		dockerfile = fmt.Sprintf(`FROM %s
COPY --from=deps / /deps
RUN createrepo_c /deps
RUN dnf install --repofrompath=deps,file:///deps --setopt=deps.gpgcheck=0 --enablerepo=deps -y %s
RUN rm -rf /deps
`, baseImage, strings.Join(deps, " "))
		buildArgs = []string{"--build-context", fmt.Sprintf("deps=%s", req.DepsDir)}
	} else {
		dockerfile = fmt.Sprintf(`FROM %s
RUN dnf install -y %s
`, baseImage, strings.Join(deps, " "))
	}

	if err := b.ensureImage(ctx, depImage, dockerfile, buildArgs); err != nil {
		return "", explainMissingPackage(err)
	}
	return depImage, nil
}

var unresolvedPackageRe = regexp.MustCompile(`Error: Unable to find a match: (\S+)`)

func explainMissingPackage(err error) error {
	if m := unresolvedPackageRe.FindStringSubmatch(err.Error()); m != nil {
		return fmt.Errorf("dependency %q could not be resolved: %w", m[1], err)
	}
	return err
}

func (b *Builder) runBuild(ctx context.Context, image string, req Request) error {
	cmd := fmt.Sprintf(`rpmbuild -ba -D "_topdir /workspace/build" %s /workspace/build/SPECS/*.spec`,
		strings.Join(quoteAll(req.Params), " "))
	if req.DebugPrepare {
		cmd = fmt.Sprintf(`rpmbuild -bp -D "_topdir /workspace/build" %s /workspace/build/SPECS/*.spec`,
			strings.Join(quoteAll(req.Params), " "))
	}

	res, err := b.Runner.Run(ctx, runner.Spec{
		Command:     cmd,
		WorkingDir:  req.BuildDir,
		Image:       image,
		Mounts:      []runner.Mount{{Source: req.BuildDir, Target: "/workspace"}},
		NetworkNone: !req.Network,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		if req.DebugPrepare {
			return fmt.Errorf("debug-prepare failed (intentional, exit %d): prepared sources under %s/build/BUILD: %s",
				res.ExitCode, req.BuildDir, res.Stderr)
		}
		return fmt.Errorf("rpmbuild failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	if req.DebugPrepare {
		return fmt.Errorf("debug-prepare completed: prepared sources available at %s/build/BUILD", req.BuildDir)
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
