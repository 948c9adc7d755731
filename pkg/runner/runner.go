// Package runner implements the Process Runner: a uniform interface to run
// a shell command either on the host or inside a container, with mounts
// and a network toggle, capturing output synchronously or streaming it to
// a logger. Grounded on the call-site shapes in
// original_source/src/main.rs (run_with_output, run_logged,
// run_with_stdin_get_output) and on the container-wrapping command line
// documented in the base spec's §6.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chainguard-dev/clog"
)

// Mount is one bind mount passed to a containerized command, in addition
// to the implicit working-directory mount.
type Mount struct {
	Source string
	Target string
}

// Spec describes one command invocation.
type Spec struct {
	Command    string
	WorkingDir string

	// Image, when non-empty, runs Command inside this container image
	// instead of directly on the host.
	Image       string
	Mounts      []Mount
	NetworkNone bool

	// Stdin, when non-nil, is piped to the command (used for `docker
	// build ... -` Dockerfile-on-stdin invocations).
	Stdin []byte

	// Stream, when set, additionally receives each output line as it is
	// produced (used for the long-running `copr watch-build` wait, whose
	// progress should be logged live). The buffered Result is still
	// returned in full once the command exits.
	Stream func(line string)
}

// Result is the outcome of one command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes Specs. The host implementation runs `bash -c <command>`
// directly or (when Spec.Image is set) wrapped in `docker run`.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// Host is the default Runner.
type Host struct{}

func NewHost() *Host { return &Host{} }

func (h *Host) Run(ctx context.Context, s Spec) (Result, error) {
	argv := buildArgv(s)

	log := clog.FromContext(ctx)
	log.Debug("running command", "argv", strings.Join(argv, " "), "dir", s.WorkingDir, "image", s.Image)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if s.Image == "" {
		cmd.Dir = s.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if s.Stream != nil {
		cmd.Stdout = &lineTee{buf: &stdout, emit: s.Stream}
		cmd.Stderr = &lineTee{buf: &stderr, emit: s.Stream}
	}
	if len(s.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(s.Stdin)
	}

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("running %q: %w", s.Command, err)
	}
	return result, nil
}

// buildArgv renders a Spec into the bash -c / docker run argv, per the base
// spec's §6 process runner contract:
//
//	docker run --rm -v <wd>:<wd> [-v <mount>...] [--network none] -w <wd> <image> bash -c <cmd>
func buildArgv(s Spec) []string {
	if s.Image == "" {
		return []string{"bash", "-c", s.Command}
	}

	argv := []string{"docker", "run", "--rm",
		"-v", fmt.Sprintf("%s:%s", s.WorkingDir, s.WorkingDir)}
	for _, m := range s.Mounts {
		argv = append(argv, "-v", fmt.Sprintf("%s:%s", m.Source, m.Target))
	}
	if s.NetworkNone {
		argv = append(argv, "--network", "none")
	}
	argv = append(argv, "-w", s.WorkingDir, s.Image, "bash", "-c", s.Command)
	return argv
}

// lineTee buffers full output while also emitting each completed line to
// emit, for the streamed-to-logger capture mode.
type lineTee struct {
	buf  *bytes.Buffer
	emit func(string)
	line bytes.Buffer
}

func (t *lineTee) Write(p []byte) (int, error) {
	t.buf.Write(p)
	for _, b := range p {
		if b == '\n' {
			t.emit(t.line.String())
			t.line.Reset()
			continue
		}
		t.line.WriteByte(b)
	}
	return len(p), nil
}
