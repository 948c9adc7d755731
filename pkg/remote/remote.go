package remote

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/time/rate"

	"github.com/da-x/spectree/pkg/identity"
	"github.com/da-x/spectree/pkg/runner"
	"github.com/da-x/spectree/pkg/spec"
	"github.com/da-x/spectree/pkg/srpm"
)

// Request is the Remote back-end's local request shape, declared here
// (rather than importing package backend) for the same import-cycle
// reason documented on container.Request.
type Request struct {
	BuildKey identity.BuildKey
	Source   *spec.Source
	SrpmPath string
	BuildDir string
	Params   []string
	TargetOS string
}

// Coordinator implements the Remote (Copr) back-end: it optionally
// repacks the SRPM with baked-in params, submits a build, persists its
// identity to a state file, and blocks until Copr reports completion.
// Grounded on original_source/src/main.rs's build_with_copr /
// wait_for_copr_build / extract_copr_build_id.
type Coordinator struct {
	Runner         runner.Runner
	Srpm           *srpm.Generator
	State          *StateStore
	Project        string
	ExcludeChroots []string

	// AssumeBuiltPattern, when non-empty, names a regex matched against a
	// source key: a match skips submission entirely and is treated as an
	// immediate success, per the base spec's copr-assume-built escape
	// hatch for sources already known to be built out of band.
	AssumeBuiltPattern string

	// Ratelimiter, when non-nil, throttles `copr build` submissions so a
	// wide fan-out of independent sources doesn't hammer the Copr API.
	// Nil disables throttling entirely.
	Ratelimiter *rate.Limiter

	// PollMode, when true, waits for build completion by repeatedly
	// shelling `copr status <id>` at a PollLimiter-governed cadence
	// instead of blocking on one long-lived `copr watch-build`
	// subprocess. Additive: the default (false) keeps the base spec's
	// literal blocking `copr watch-build` behavior. Useful when the
	// coordinator runs inside an environment that kills long-idle child
	// processes.
	PollMode bool

	// PollLimiter governs how often `copr status` is polled in PollMode.
	// Required (non-nil) when PollMode is true.
	PollLimiter *rate.Limiter
}

func New(r runner.Runner, gen *srpm.Generator, state *StateStore, project string, excludeChroots []string) *Coordinator {
	return &Coordinator{Runner: r, Srpm: gen, State: state, Project: project, ExcludeChroots: excludeChroots}
}

func (c *Coordinator) Name() string { return "remote" }

// Build submits req to Copr (unless assume-built applies) and waits for
// completion, persisting state transitions at every step so a crashed or
// re-invoked process can rejoin an in-flight build instead of resubmitting.
func (c *Coordinator) Build(ctx context.Context, req Request) error {
	log := clog.FromContext(ctx)
	buildKey := req.BuildKey.String()

	if c.AssumeBuiltPattern != "" {
		re, err := regexp.Compile(c.AssumeBuiltPattern)
		if err != nil {
			return fmt.Errorf("invalid assume-built pattern %q: %w", c.AssumeBuiltPattern, err)
		}
		if re.MatchString(string(req.BuildKey.SourceKey)) {
			log.Info("skipping remote build, matches assume-built pattern", "source", req.BuildKey.SourceKey, "pattern", c.AssumeBuiltPattern)
			return nil
		}
	}

	if existing, ok, err := c.State.Get(buildKey); err != nil {
		return err
	} else if ok {
		switch existing.Status {
		case StatusCompleted:
			log.Info("remote build already completed", "build_id", existing.BuildID)
			return nil
		case StatusSubmitted, StatusInProgress:
			log.Info("rejoining in-flight remote build", "build_id", existing.BuildID)
			return c.wait(ctx, existing.BuildID, buildKey)
		case StatusFailed:
			log.Info("retrying previously failed remote build", "build_id", existing.BuildID)
		}
	}

	srpmPath := req.SrpmPath
	if len(req.Params) > 0 {
		log.Info("repacking SRPM with build parameters for remote submission")
		repacked, err := c.Srpm.RepackWithParams(ctx, req.SrpmPath, req.BuildDir, req.Params)
		if err != nil {
			return fmt.Errorf("repacking srpm with params: %w", err)
		}
		srpmPath = repacked
	}

	buildID, err := c.submit(ctx, req, srpmPath)
	if err != nil {
		return fmt.Errorf("submitting remote build: %w", err)
	}

	if err := c.State.Set(BuildState{BuildKey: buildKey, BuildID: buildID, Status: StatusSubmitted}); err != nil {
		return err
	}

	return c.wait(ctx, buildID, buildKey)
}

func (c *Coordinator) submit(ctx context.Context, req Request, srpmPath string) (uint64, error) {
	log := clog.FromContext(ctx)

	if c.Ratelimiter != nil {
		if err := c.Ratelimiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("waiting for submission rate limiter: %w", err)
		}
	}

	args := []string{"copr", "build", "--nowait", c.Project, srpmPath}
	for _, chroot := range c.ExcludeChroots {
		args = append(args, "--exclude-chroot", chroot)
	}
	if req.Source.Network {
		args = append(args, "--enable-net", "on")
	}
	cmd := strings.Join(args, " ")
	log.Info("executing copr build", "command", cmd)

	res, err := c.Runner.Run(ctx, runner.Spec{Command: cmd})
	if err != nil {
		return 0, fmt.Errorf("running %q: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("copr build submission failed (exit %d): %s", res.ExitCode, res.Stderr)
	}

	buildID, err := extractCoprBuildID(res.Stdout)
	if err != nil {
		return 0, err
	}
	log.Info("copr build submitted", "build_id", buildID)
	return buildID, nil
}

func (c *Coordinator) wait(ctx context.Context, buildID uint64, buildKey string) error {
	log := clog.FromContext(ctx)
	log.Info("waiting for copr build", "build_id", buildID)

	if err := c.State.SetStatus(buildKey, StatusInProgress); err != nil {
		return err
	}

	var err error
	if c.PollMode {
		err = c.waitByPolling(ctx, buildID)
	} else {
		err = c.waitByWatching(ctx, buildID)
	}

	if err == nil {
		log.Info("copr build completed successfully", "build_id", buildID)
		return c.State.SetStatus(buildKey, StatusCompleted)
	}

	if setErr := c.State.SetStatus(buildKey, StatusFailed); setErr != nil {
		log.Error("failed to persist failed build status", "error", setErr)
	}
	return err
}

// waitByWatching blocks on one long-lived `copr watch-build` subprocess,
// the base spec's default behavior.
func (c *Coordinator) waitByWatching(ctx context.Context, buildID uint64) error {
	log := clog.FromContext(ctx)
	cmd := fmt.Sprintf("copr watch-build %d", buildID)
	res, err := c.Runner.Run(ctx, runner.Spec{Command: cmd, Stream: func(line string) {
		log.Info(line)
	}})
	if err != nil {
		return fmt.Errorf("running %q: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("copr build %d failed (exit %d): %s", buildID, res.ExitCode, res.Stderr)
	}
	return nil
}

// waitByPolling repeatedly shells `copr status <id>` at a
// PollLimiter-governed cadence until a terminal state is reached, instead
// of blocking on one long-lived subprocess.
func (c *Coordinator) waitByPolling(ctx context.Context, buildID uint64) error {
	log := clog.FromContext(ctx)
	if c.PollLimiter == nil {
		return fmt.Errorf("remote coordinator: PollMode requires a non-nil PollLimiter")
	}

	cmd := fmt.Sprintf("copr status %d", buildID)
	for {
		if err := c.PollLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for poll rate limiter: %w", err)
		}

		res, err := c.Runner.Run(ctx, runner.Spec{Command: cmd})
		if err != nil {
			return fmt.Errorf("running %q: %w", cmd, err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("copr status %d failed (exit %d): %s", buildID, res.ExitCode, res.Stderr)
		}

		state := parseCoprStatus(res.Stdout)
		log.Debug("polled copr build status", "build_id", buildID, "state", state)

		switch {
		case coprSucceededStates[state]:
			return nil
		case coprFailedStates[state]:
			return fmt.Errorf("copr build %d reached terminal state %q", buildID, state)
		}
	}
}

var (
	coprSucceededStates = map[string]bool{"succeeded": true}
	coprFailedStates    = map[string]bool{"failed": true, "canceled": true, "cancelled": true, "skipped": true}
)

// parseCoprStatus extracts the single-word build state `copr status`
// prints on its first non-blank line of output.
func parseCoprStatus(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line != "" {
			return line
		}
	}
	return ""
}

// extractCoprBuildID parses the "Created builds: <id>" line `copr build`
// prints on success. Grounded on original_source/src/main.rs's
// extract_copr_build_id.
func extractCoprBuildID(output string) (uint64, error) {
	const prefix = "Created builds: "
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			idStr := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			id, err := strconv.ParseUint(idStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parsing build ID %q: %w", idStr, err)
			}
			return id, nil
		}
	}
	return 0, fmt.Errorf("no %q line found in copr output", strings.TrimSpace(prefix))
}
