package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"testpilot/internal/config"
	"testpilot/internal/domain"
	"testpilot/internal/formatter"
	"testpilot/internal/history"
	"testpilot/internal/report"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// maxInputBytes bounds what analyze reads from a file or stdin.
const maxInputBytes = 4 << 20

type analyzeOptions struct {
	sample       bool
	output       string
	saveReport   bool
	emailDraft   bool
	hideSeverity []string
}

func newAnalyzeCmd() *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [FILE|-]",
		Short: "Analyze test output and record the result",
		Long: `Send test output to the analysis agent, print the bug report, test summary and
CI verdict, and add the analysis to history.

Examples:
  # Analyze a saved test log
  testpilot analyze go-test.log

  # Pipe test output straight in
  go test ./... 2>&1 | testpilot analyze -

  # Try it with the bundled sample run and save a markdown report
  testpilot analyze --sample --save-report

  # Only show critical and high bugs
  testpilot analyze run.log --hide-severity medium,low`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, o)
		},
	}

	cmd.Flags().BoolVar(&o.sample, "sample", false, "Analyze the bundled sample test run")
	cmd.Flags().StringVarP(&o.output, "output", "o", formatter.FormatHuman, "Output format (human, json, yaml, markdown)")
	cmd.Flags().BoolVar(&o.saveReport, "save-report", false, "Write a markdown report to report_output_dir")
	cmd.Flags().BoolVar(&o.emailDraft, "email-draft", false, "Write an .eml email draft to report_output_dir")
	cmd.Flags().StringSliceVar(&o.hideSeverity, "hide-severity", nil, "Severities to leave out of the bug list (critical, high, medium, low, unknown)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, o *analyzeOptions) error {
	format, err := formatter.ParseFormat(o.output)
	if err != nil {
		return err
	}
	hidden, err := parseHiddenSeverities(o.hideSeverity)
	if err != nil {
		return err
	}
	input, err := readInput(cmd.InOrStdin(), args, o.sample)
	if err != nil {
		return err
	}

	cfg := config.LoadConfig()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rt, err := openRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	var s *spinner.Spinner
	if format == formatter.FormatHuman {
		s = spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Analyzing test output..."
		s.Start()
	}
	entry, err := rt.ctrl.Analyze(ctx, input)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := formatter.DisplayResults(out, entry.Result, formatter.Options{Format: format, Hidden: hidden}); err != nil {
		return err
	}

	return writeArtifacts(cmd.ErrOrStderr(), cfg, entry, o.saveReport, o.emailDraft)
}

func writeArtifacts(w io.Writer, cfg config.Config, entry history.Entry, saveReport, emailDraft bool) error {
	if !saveReport && !emailDraft {
		return nil
	}
	md := report.Markdown(entry.Result)
	analyzedAt := entry.Time().In(cfg.Location)
	if saveReport {
		path, err := report.WriteFile(md, cfg.ReportOutputDir, analyzedAt, entry.ID)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(w, "%s Report saved to %s\n", color.GreenString("✓"), path)
	}
	if emailDraft {
		path, err := report.WriteEmailDraftFile(md, cfg.ReportOutputDir, analyzedAt, entry.ID, "")
		if err != nil {
			return fmt.Errorf("write email draft: %w", err)
		}
		fmt.Fprintf(w, "%s Email draft saved to %s\n", color.GreenString("✓"), path)
	}
	return nil
}

// readInput picks the analysis input: the sample run, stdin ("-"), or a file.
func readInput(stdin io.Reader, args []string, sample bool) (string, error) {
	switch {
	case sample && len(args) > 0:
		return "", errors.New("--sample cannot be combined with a FILE argument")
	case sample:
		return domain.SampleInput, nil
	case len(args) == 0:
		return "", errors.New("provide a FILE, '-' to read stdin, or --sample")
	}

	var r io.Reader = stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("input is larger than %d bytes", maxInputBytes)
	}
	return string(data), nil
}

func parseHiddenSeverities(values []string) ([]domain.Severity, error) {
	var out []domain.Severity
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		sev := domain.ParseSeverity(v)
		if sev == domain.SeverityUnknown && !strings.EqualFold(v, string(domain.SeverityUnknown)) {
			return nil, fmt.Errorf("unknown severity %q", v)
		}
		out = append(out, sev)
	}
	return out, nil
}
