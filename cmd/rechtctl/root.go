package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var serverFlag string
	var tokenFlag string
	var jsonFlag bool
	var intervalFlag time.Duration

	ctx := newCommandContext(&serverFlag, &tokenFlag, &jsonFlag, &intervalFlag)

	rootCmd := &cobra.Command{
		Use:           "rechtctl",
		Short:         "Work on cases and summons from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "API base URL (default $RECHTSTREEKS_URL or "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API bearer token (default $RECHTSTREEKS_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print raw JSON instead of tables")
	rootCmd.PersistentFlags().DurationVar(&intervalFlag, "interval", 0, "Refresh interval while sections generate (default $RECHTSTREEKS_POLL_INTERVAL_MS or 2s)")

	rootCmd.AddCommand(newCasesCommand(ctx))
	rootCmd.AddCommand(newSummonsCommand(ctx))
	rootCmd.AddCommand(newSectionsCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newApproveCommand(ctx))
	rootCmd.AddCommand(newRejectCommand(ctx))
	rootCmd.AddCommand(newAssembleCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))

	return rootCmd
}
