package slackbot

import (
	"fmt"
	"strings"
	"time"

	"testpilot/internal/config"
	"testpilot/internal/domain"
	"testpilot/internal/formatter"
	"testpilot/internal/history"
	"testpilot/internal/report"
)

const (
	historyPageSize = 15
	topActions      = 3
)

func location(cfg config.Config) *time.Location {
	if cfg.Location == nil {
		return time.Local
	}
	return cfg.Location
}

func shortID(id string) string {
	return formatter.ShortID(id)
}

func entryDate(e history.Entry, cfg config.Config) string {
	t := e.Time()
	if t.IsZero() {
		return e.Date
	}
	return t.In(location(cfg)).Format("2006-01-02 15:04")
}

// formatResultMessage renders an accepted analysis as Slack mrkdwn.
func formatResultMessage(e history.Entry, cfg config.Config) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("*Analysis %s* · %s", shortID(e.ID), entryDate(e, cfg)))

	r := e.Result
	if status := r.VerdictStatus(); status != "" {
		lines = append(lines, fmt.Sprintf("%s *CI verdict:* %s", formatter.VerdictIcon(status), report.VerdictLabel(status)))
	}

	switch {
	case r.BugReport.Value != nil:
		br := r.BugReport.Value
		lines = append(lines, fmt.Sprintf("*Bugs:* %d (critical %d, high %d, medium %d, low %d)",
			domain.IntOr(br.TotalBugs, 0),
			br.CountFor(domain.SeverityCritical),
			br.CountFor(domain.SeverityHigh),
			br.CountFor(domain.SeverityMedium),
			br.CountFor(domain.SeverityLow),
		))
	case r.BugReport.IsRaw():
		lines = append(lines, "_Bug report came back as unstructured text, see the attached report._")
	}

	switch {
	case r.TestReport.Value != nil:
		tr := r.TestReport.Value
		if ts := tr.TestSummary; ts != nil {
			passRate := ts.PassRate
			if passRate == "" {
				passRate = "N/A"
			}
			lines = append(lines, fmt.Sprintf("*Tests:* %d/%d passed, %d failed (%s)",
				domain.IntOr(ts.Passed, 0), domain.IntOr(ts.TotalTests, 0), domain.IntOr(ts.Failed, 0), passRate))
		}
		if n := len(tr.RecommendedActions); n > 0 {
			lines = append(lines, "*Top actions:*")
			for i, a := range tr.RecommendedActions {
				if i == topActions {
					lines = append(lines, fmt.Sprintf("_...and %d more_", n-topActions))
					break
				}
				prio := strings.ToUpper(a.Priority)
				if prio == "" {
					prio = "N/A"
				}
				lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, prio, a.Action))
			}
		}
	case r.TestReport.IsRaw():
		lines = append(lines, "_Test report came back as unstructured text, see the attached report._")
	}

	return strings.Join(lines, "\n")
}

// formatHistoryList renders a newest-first history view, one line per entry.
func formatHistoryList(entries []history.Entry, cfg config.Config) string {
	if len(entries) == 0 {
		return "No analyses in history."
	}
	lines := []string{fmt.Sprintf("*Recent analyses* (%d)", len(entries))}
	for i, e := range entries {
		if i == historyPageSize {
			lines = append(lines, fmt.Sprintf("_...and %d more. Narrow the search to see them._", len(entries)-historyPageSize))
			break
		}
		bugs := "- bugs"
		if n, ok := e.Result.TotalBugs(); ok {
			bugs = fmt.Sprintf("%d bugs", n)
		}
		if sym := trendSymbol(history.TrendAt(entries, i)); sym != "" {
			bugs += " " + sym
		}
		verdict := e.Result.VerdictStatus()
		if verdict == "" {
			verdict = "-"
		}
		lines = append(lines, fmt.Sprintf("`%s` %s · %s · %s · %s",
			shortID(e.ID), entryDate(e, cfg), bugs, verdict, oneLine(e.InputSummary, 60)))
	}
	return strings.Join(lines, "\n")
}

func trendSymbol(t history.Trend) string {
	switch t {
	case history.TrendIncreasing:
		return "▲"
	case history.TrendDecreasing:
		return "▼"
	case history.TrendFlat:
		return "="
	default:
		return ""
	}
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
