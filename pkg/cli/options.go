// Package cli wires the engine packages (spec, resolve, identity, vcs,
// workspace, srpm, backend, container, remote, scheduler) into a cobra
// command tree. Grounded on the teacher's flag-driven cmd/melange-server
// main.go for the ambient concerns (logging, tracing setup) and
// generalized to cobra/pflag per the library choices recorded in
// DESIGN.md.
package cli

// BackendKind selects which Backend implementation a build invocation
// dispatches to.
type BackendKind string

const (
	BackendNull   BackendKind = "null"
	BackendMock   BackendKind = "mock"
	BackendDocker BackendKind = "docker"
	BackendRemote BackendKind = "remote"
)

// BuildOptions holds every flag of the `spectree build` command.
type BuildOptions struct {
	SpecFile     string
	WorkspaceDir string
	Roots        []string
	Backend      BackendKind
	backendFlag  string
	OutputDir    string
	TargetOS     string
	DebugPrepare bool

	CoprProject        string
	CoprExcludeChroots []string
	CoprAssumeBuilt    string
	CoprStateFile      string
	// CoprSubmitRate caps `copr build` submissions per second (0 disables
	// throttling). Guards against a wide fan-out of independent sources
	// hammering the Copr API at once.
	CoprSubmitRate float64
	// CoprPoll switches the remote backend from blocking on
	// `copr watch-build` to repeatedly shelling `copr status` instead,
	// useful in environments that kill long-idle child processes.
	CoprPoll bool
	// CoprPollInterval is the minimum spacing, in seconds, between
	// `copr status` polls when CoprPoll is set.
	CoprPollInterval float64

	// EnvFile, when non-empty, is loaded via godotenv before the Copr CLI
	// is invoked, so remote credentials can live outside the process
	// environment. Additive: an unset or missing file is not an error.
	EnvFile string
}

// GlobalOptions holds the flags attached to the root command, shared by
// every subcommand.
type GlobalOptions struct {
	LogLevel  string
	LogFormat string
	TraceFile string
}
