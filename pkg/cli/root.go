package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the `spectree` command tree.
func NewRootCmd() *cobra.Command {
	globals := GlobalOptions{}

	root := &cobra.Command{
		Use:           "spectree",
		Short:         "Content-addressed RPM package build DAG engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := setupLogging(cmd.Context(), globals)
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&globals.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&globals.LogFormat, "log-format", "text", "log format: text, json")
	flags.StringVar(&globals.TraceFile, "trace-file", "", "write OpenTelemetry spans to this file as JSON lines")

	root.AddCommand(newBuildCmd(&globals))
	root.AddCommand(newVersionCmd())
	return root
}
