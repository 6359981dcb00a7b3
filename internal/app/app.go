package app

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version is overwritten at build time.
var Version = "dev"

var (
	configPath string
	verbose    bool
)

func Main() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "testpilot",
		Short: "AI test-result analysis dashboard",
		Long: `testpilot sends test output to an analysis agent and turns the answer into a
bug report, a test summary and a CI verdict. Accepted analyses are kept in a
bounded history that can be searched, exported or served over Slack.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				os.Setenv("CONFIG_PATH", configPath)
			}
			// serve keeps the log on stderr; one-shot commands only log with -v.
			if verbose || cmd.Name() == "serve" {
				log.SetOutput(os.Stderr)
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (defaults to $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newHistoryCmd(),
		newDigestCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "testpilot version %s\n", Version)
		},
	}
}
