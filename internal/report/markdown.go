package report

import (
	"fmt"
	"strings"

	"testpilot/internal/domain"
)

const title = "# TestPilot AI Analysis Report"

// Markdown renders an analysis as a heading/section document. Sections the
// agent sent in an undecoded form are included verbatim in a code block.
func Markdown(result domain.AnalysisResult) string {
	lines := []string{title, ""}

	switch {
	case result.BugReport.Value != nil:
		lines = append(lines, bugReportLines(*result.BugReport.Value)...)
	case result.BugReport.IsRaw():
		lines = append(lines, rawLines("## Bug Report", result.BugReport.RawText())...)
	}

	switch {
	case result.TestReport.Value != nil:
		lines = append(lines, testReportLines(*result.TestReport.Value)...)
	case result.TestReport.IsRaw():
		lines = append(lines, rawLines("## Test Summary", result.TestReport.RawText())...)
	}

	if n := result.Notification.Value; n != nil && n.EmailSent {
		lines = append(lines, "## Notification")
		lines = append(lines, fmt.Sprintf("Email sent to %s", strings.Join(n.Recipients, ", ")))
		if n.Subject != "" {
			lines = append(lines, fmt.Sprintf("**Subject:** %s", n.Subject))
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

func bugReportLines(br domain.BugReport) []string {
	lines := []string{
		"## Bug Report",
		fmt.Sprintf("Total Bugs: %d | Critical: %d | High: %d | Medium: %d | Low: %d",
			domain.IntOr(br.TotalBugs, 0),
			br.CountFor(domain.SeverityCritical),
			br.CountFor(domain.SeverityHigh),
			br.CountFor(domain.SeverityMedium),
			br.CountFor(domain.SeverityLow),
		),
		"",
	}
	if br.Summary != "" {
		lines = append(lines, fmt.Sprintf("**Summary:** %s", br.Summary), "")
	}
	for i, bug := range br.Bugs {
		name := bug.Title
		if name == "" {
			name = "Untitled"
		}
		lines = append(lines, fmt.Sprintf("### %d. [%s] %s", i+1, strings.ToUpper(string(bug.Severity)), name))
		if bug.Description != "" {
			lines = append(lines, fmt.Sprintf("**Description:** %s", bug.Description))
		}
		if bug.RootCause != "" {
			lines = append(lines, fmt.Sprintf("**Root Cause:** %s", bug.RootCause))
		}
		if bug.SuggestedFix != "" {
			lines = append(lines, fmt.Sprintf("**Suggested Fix:** %s", bug.SuggestedFix))
		}
		lines = append(lines, "")
	}
	return lines
}

func testReportLines(tr domain.TestReport) []string {
	lines := []string{"## Test Summary"}
	if ts := tr.TestSummary; ts != nil {
		passRate := ts.PassRate
		if passRate == "" {
			passRate = "N/A"
		}
		lines = append(lines,
			fmt.Sprintf("- Total Tests: %d", domain.IntOr(ts.TotalTests, 0)),
			fmt.Sprintf("- Passed: %d", domain.IntOr(ts.Passed, 0)),
			fmt.Sprintf("- Failed: %d", domain.IntOr(ts.Failed, 0)),
			fmt.Sprintf("- Pass Rate: %s", passRate),
			"",
		)
	}
	if tr.CoverageObservations != "" {
		lines = append(lines, fmt.Sprintf("**Coverage Observations:** %s", tr.CoverageObservations), "")
	}
	if ci := tr.CIVerdict; ci != nil {
		lines = append(lines, "## CI Verdict", fmt.Sprintf("**Status:** %s", VerdictLabel(ci.Status)))
		if ci.Reasoning != "" {
			lines = append(lines, fmt.Sprintf("**Reasoning:** %s", ci.Reasoning))
		}
		lines = append(lines, "")
	}
	if len(tr.RecommendedActions) > 0 {
		lines = append(lines, "## Recommended Actions")
		for i, a := range tr.RecommendedActions {
			lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, strings.ToUpper(a.Priority), a.Action))
			if a.Reason != "" {
				lines = append(lines, fmt.Sprintf("   Reason: %s", a.Reason))
			}
		}
		lines = append(lines, "")
	}
	return lines
}

func rawLines(heading, text string) []string {
	return []string{heading, "```", text, "```", ""}
}

// VerdictLabel renders a verdict status for people: "deploy_blocked" becomes "DEPLOY BLOCKED".
func VerdictLabel(status string) string {
	if status == "" {
		status = "unknown"
	}
	return strings.ToUpper(strings.ReplaceAll(status, "_", " "))
}
