package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCmd(globals *GlobalOptions) *cobra.Command {
	opts := BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build <spec_file> <root_source> [root_source...]",
		Short: "Resolve, schedule, and build one or more root sources and their dependencies",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SpecFile = args[0]
			opts.Roots = args[1:]

			shutdownTracing, err := setupTracing(cmd.Context(), globals.TraceFile)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracing(cmd.Context()) }()

			backendKind := BackendKind(opts.backendFlag)
			if opts.backendFlag == "copr" {
				backendKind = BackendRemote
			}
			switch backendKind {
			case BackendNull, BackendMock, BackendDocker, BackendRemote:
				opts.Backend = backendKind
			default:
				return fmt.Errorf("unknown --backend %q", opts.backendFlag)
			}

			return RunBuild(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.WorkspaceDir, "workspace", "w", "", "path to the workspace directory (required)")
	_ = cmd.MarkFlagRequired("workspace")
	flags.StringVarP(&opts.backendFlag, "backend", "b", "mock", "back-end: mock, null, docker, copr")
	flags.StringVar(&opts.OutputDir, "output-dir", "", "directory to publish root build outputs into")
	flags.StringVar(&opts.TargetOS, "target-os", "", "override base-OS detection (epel8, epel9, epel10)")
	flags.BoolVar(&opts.DebugPrepare, "debug-prepare", false, "run %prep only and fail intentionally, for build debugging (container backend)")
	flags.StringVar(&opts.CoprProject, "copr-project", "", "Copr project to submit remote builds to")
	flags.StringArrayVar(&opts.CoprExcludeChroots, "exclude-chroot", nil, "chroot to exclude from a Copr build (repeatable)")
	flags.StringVar(&opts.CoprAssumeBuilt, "copr-assume-built", "", "regex: source keys matching this are assumed already built remotely")
	flags.StringVar(&opts.CoprStateFile, "copr-state-file", "", "path to the Copr build state YAML file (default: <workspace>/copr-state.yaml)")
	flags.Float64Var(&opts.CoprSubmitRate, "copr-submit-rate", 0, "max `copr build` submissions per second (0 disables throttling)")
	flags.BoolVar(&opts.CoprPoll, "copr-poll", false, "wait for remote builds by polling `copr status` instead of blocking on `copr watch-build`")
	flags.Float64Var(&opts.CoprPollInterval, "copr-poll-interval", 10, "seconds between `copr status` polls in --copr-poll mode")
	flags.StringVar(&opts.EnvFile, "env-file", "", "load remote-build credentials from this .env file")

	return cmd
}
