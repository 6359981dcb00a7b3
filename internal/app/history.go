package app

import (
	"errors"
	"fmt"
	"os"

	"testpilot/internal/config"
	"testpilot/internal/domain"
	"testpilot/internal/formatter"
	"testpilot/internal/history"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage past analyses",
	}
	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryDeleteCmd(),
		newHistoryClearCmd(),
		newHistoryExportCmd(),
	)
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var search, verdict, output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analyses, newest first",
		Long: `List stored analyses with their bug count, trend and CI verdict.

Examples:
  testpilot history list
  testpilot history list --search login --verdict deploy_blocked
  testpilot history list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatter.ParseFormat(output)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), config.LoadConfig(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			return formatter.DisplayHistory(cmd.OutOrStdout(), rt.ctrl.Query(search, domain.VerdictKey(verdict)), format)
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Case-insensitive text to look for in the input summary")
	cmd.Flags().StringVar(&verdict, "verdict", history.VerdictAll, "Only show this CI verdict (all, safe_to_deploy, needs_attention, deploy_blocked)")
	cmd.Flags().StringVarP(&output, "output", "o", formatter.FormatHuman, "Output format (human, json, yaml, markdown)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var output string
	var hideSeverity []string
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one analysis (a unique id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatter.ParseFormat(output)
			if err != nil {
				return err
			}
			hidden, err := parseHiddenSeverities(hideSeverity)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), config.LoadConfig(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			entry, err := rt.ctrl.Lookup(args[0])
			if err != nil {
				return err
			}
			return formatter.DisplayEntry(cmd.OutOrStdout(), entry, formatter.Options{Format: format, Hidden: hidden})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatter.FormatHuman, "Output format (human, json, yaml, markdown)")
	cmd.Flags().StringSliceVar(&hideSeverity, "hide-severity", nil, "Severities to leave out of the bug list")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one analysis (a unique id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), config.LoadConfig(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			entry, err := rt.ctrl.Lookup(args[0])
			if err != nil {
				return err
			}
			if !rt.ctrl.Delete(cmd.Context(), entry.ID) {
				return fmt.Errorf("%w: %s", history.ErrNotFound, entry.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted analysis %s\n", color.GreenString("✓"), entry.ID)
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("this removes every stored analysis; rerun with --yes to confirm")
			}
			rt, err := openRuntime(cmd.Context(), config.LoadConfig(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			n := rt.ctrl.Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s Cleared %d analyses\n", color.GreenString("✓"), n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing history")
	return cmd
}

func newHistoryExportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write history as the stored JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), config.LoadConfig(), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			data, err := rt.history().Marshal()
			if err != nil {
				return err
			}
			if file == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(file, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %d analyses to %s\n", color.GreenString("✓"), rt.history().Len(), file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Write to this file instead of stdout")
	return cmd
}
