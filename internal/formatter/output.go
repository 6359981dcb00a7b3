package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"testpilot/internal/domain"
	"testpilot/internal/report"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

const (
	FormatHuman    = "human"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Formats lists the accepted -o values.
var Formats = []string{FormatHuman, FormatJSON, FormatYAML, FormatMarkdown}

type Options struct {
	Format string
	// Hidden severities are left out of the human and markdown bug lists.
	Hidden []domain.Severity
}

func (o Options) enabled() map[domain.Severity]bool {
	if len(o.Hidden) == 0 {
		return nil
	}
	m := make(map[domain.Severity]bool, len(o.Hidden))
	for _, s := range o.Hidden {
		m[s] = false
	}
	return m
}

// ParseFormat validates an -o value.
func ParseFormat(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatHuman, nil
	}
	for _, f := range Formats {
		if s == f {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want one of %s)", s, strings.Join(Formats, ", "))
}

// DisplayResults writes one analysis in the requested format.
func DisplayResults(w io.Writer, result domain.AnalysisResult, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return displayJSON(w, result)
	case FormatYAML:
		return displayYAML(w, result)
	case FormatMarkdown:
		_, err := fmt.Fprintln(w, report.Markdown(filtered(result, opts)))
		return err
	case FormatHuman:
		fallthrough
	default:
		displayHuman(w, filtered(result, opts))
	}
	return nil
}

func filtered(result domain.AnalysisResult, opts Options) domain.AnalysisResult {
	enabled := opts.enabled()
	if enabled == nil || result.BugReport.Value == nil {
		return result
	}
	br := *result.BugReport.Value
	br.Bugs = domain.FilterBugs(br.Bugs, enabled)
	result.BugReport = domain.Decoded(br)
	return result
}

func displayJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func displayYAML(w io.Writer, v any) error {
	output, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, string(output))
	return err
}

func displayHuman(w io.Writer, result domain.AnalysisResult) {
	red := color.New(color.FgRed, color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)
	white := color.New(color.FgWhite, color.Bold)

	fmt.Fprintln(w)

	switch {
	case result.BugReport.Value != nil:
		br := result.BugReport.Value
		red.Fprintln(w, "🐞 BUG REPORT:")
		fmt.Fprintf(w, "   Total: %d  Critical: %d  High: %d  Medium: %d  Low: %d\n",
			domain.IntOr(br.TotalBugs, 0),
			br.CountFor(domain.SeverityCritical),
			br.CountFor(domain.SeverityHigh),
			br.CountFor(domain.SeverityMedium),
			br.CountFor(domain.SeverityLow),
		)
		if br.Summary != "" {
			fmt.Fprintln(w, wrapText(br.Summary, 80, "   "))
		}
		fmt.Fprintln(w)
		for i, bug := range br.Bugs {
			name := bug.Title
			if name == "" {
				name = "Untitled"
			}
			getSeverityColor(string(bug.Severity)).Fprintf(w, "   %d. %s [%s] %s\n", i+1, getSeverityIcon(string(bug.Severity)), strings.ToUpper(string(bug.Severity)), name)
			if bug.Description != "" {
				fmt.Fprintf(w, "      %s\n", bug.Description)
			}
			if bug.RootCause != "" {
				fmt.Fprintf(w, "      Root cause: %s\n", color.YellowString(bug.RootCause))
			}
			if bug.SuggestedFix != "" {
				fmt.Fprintf(w, "      Fix: %s\n", color.GreenString(bug.SuggestedFix))
			}
			fmt.Fprintln(w)
		}
	case result.BugReport.IsRaw():
		red.Fprintln(w, "🐞 BUG REPORT (unstructured):")
		fmt.Fprintln(w, wrapText(result.BugReport.RawText(), 80, "   "))
		fmt.Fprintln(w)
	}

	switch {
	case result.TestReport.Value != nil:
		displayTestReport(w, *result.TestReport.Value)
	case result.TestReport.IsRaw():
		cyan.Fprintln(w, "🧪 TEST REPORT (unstructured):")
		fmt.Fprintln(w, wrapText(result.TestReport.RawText(), 80, "   "))
		fmt.Fprintln(w)
	}

	if n := result.Notification.Value; n != nil && n.EmailSent {
		white.Fprintln(w, "📧 NOTIFICATION:")
		fmt.Fprintf(w, "   Sent to %s\n\n", strings.Join(n.Recipients, ", "))
	}

	fmt.Fprintln(w, strings.Repeat("─", 80))
	fmt.Fprintf(w, "💡 %s\n", color.HiBlackString("Run with -o json, -o yaml or -o markdown for machine-readable output"))
}

func displayTestReport(w io.Writer, tr domain.TestReport) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	if ts := tr.TestSummary; ts != nil {
		cyan.Fprintln(w, "🧪 TEST SUMMARY:")
		passRate := ts.PassRate
		if passRate == "" {
			passRate = "N/A"
		}
		fmt.Fprintf(w, "   Total: %d  Passed: %s  Failed: %s  Pass rate: %s\n\n",
			domain.IntOr(ts.TotalTests, 0),
			color.GreenString("%d", domain.IntOr(ts.Passed, 0)),
			color.RedString("%d", domain.IntOr(ts.Failed, 0)),
			passRate,
		)
	}

	if len(tr.SeverityBreakdown) > 0 {
		yellow.Fprintln(w, "📊 SEVERITY BREAKDOWN:")
		for _, sb := range tr.SeverityBreakdown {
			fmt.Fprintf(w, "   %s %-8s %d", getSeverityIcon(sb.Severity), strings.ToUpper(sb.Severity), domain.IntOr(sb.Count, 0))
			if sb.Details != "" {
				fmt.Fprintf(w, "  %s", sb.Details)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if tr.CoverageObservations != "" {
		cyan.Fprintln(w, "🔍 COVERAGE OBSERVATIONS:")
		fmt.Fprintln(w, wrapText(tr.CoverageObservations, 80, "   "))
		fmt.Fprintln(w)
	}

	if ci := tr.CIVerdict; ci != nil {
		VerdictColor(ci.Status).Fprintf(w, "%s CI VERDICT: %s\n", VerdictIcon(ci.Status), report.VerdictLabel(ci.Status))
		if ci.Reasoning != "" {
			fmt.Fprintln(w, wrapText(ci.Reasoning, 80, "   "))
		}
		fmt.Fprintln(w)
	}

	if len(tr.RecommendedActions) > 0 {
		green.Fprintln(w, "🚀 RECOMMENDED ACTIONS:")
		for i, a := range tr.RecommendedActions {
			fmt.Fprintf(w, "   %d. %s %s\n", i+1, getPriorityIcon(a.Priority), a.Action)
			if a.Reason != "" {
				fmt.Fprintf(w, "      Why: %s\n", a.Reason)
			}
		}
		fmt.Fprintln(w)
	}
}

// VerdictColor picks the display color for a verdict status.
func VerdictColor(status string) *color.Color {
	switch domain.VerdictKey(status) {
	case domain.VerdictSafeToDeploy:
		return color.New(color.FgGreen, color.Bold)
	case domain.VerdictNeedsAttention:
		return color.New(color.FgYellow, color.Bold)
	case domain.VerdictDeployBlocked:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}

func VerdictIcon(status string) string {
	switch domain.VerdictKey(status) {
	case domain.VerdictSafeToDeploy:
		return "✅"
	case domain.VerdictNeedsAttention:
		return "⚠️"
	case domain.VerdictDeployBlocked:
		return "⛔"
	default:
		return "❔"
	}
}

func getSeverityColor(severity string) *color.Color {
	switch strings.ToLower(severity) {
	case "critical":
		return color.New(color.FgRed, color.Bold)
	case "high":
		return color.New(color.FgRed)
	case "medium":
		return color.New(color.FgYellow)
	case "low":
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgWhite)
	}
}

func getSeverityIcon(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "🔴"
	case "high":
		return "🟠"
	case "medium":
		return "🟡"
	case "low":
		return "🟢"
	default:
		return "⚪"
	}
}

func getPriorityIcon(priority string) string {
	switch strings.ToLower(priority) {
	case "critical":
		return "🔥"
	case "high":
		return "⚡"
	case "medium":
		return "🔹"
	case "low":
		return "▫️"
	default:
		return "•"
	}
}

func wrapText(text string, width int, indent string) string {
	var result strings.Builder
	lines := strings.Split(text, "\n")

	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			result.WriteString("\n")
			continue
		}

		currentLine := indent
		for _, word := range words {
			if len(currentLine)+len(word)+1 > width {
				result.WriteString(currentLine + "\n")
				currentLine = indent + word
			} else if currentLine == indent {
				currentLine += word
			} else {
				currentLine += " " + word
			}
		}

		if currentLine != indent {
			result.WriteString(currentLine + "\n")
		}
	}

	return strings.TrimSuffix(result.String(), "\n")
}
