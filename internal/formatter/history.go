package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"testpilot/internal/history"

	"github.com/fatih/color"
)

// DisplayHistory writes a newest-first list of entries. Trend arrows compare
// each entry with the one below it in the same list.
func DisplayHistory(w io.Writer, entries []history.Entry, format string) error {
	switch format {
	case FormatJSON:
		return displayJSON(w, entries)
	case FormatYAML:
		return displayYAML(w, entries)
	case FormatMarkdown:
		displayHistoryMarkdown(w, entries)
		return nil
	default:
		displayHistoryHuman(w, entries)
		return nil
	}
}

func displayHistoryHuman(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, color.HiBlackString("No analyses in history."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tBUGS\tTREND\tVERDICT\tINPUT")
	for i, e := range entries {
		verdict := e.Result.VerdictStatus()
		verdictText := "-"
		if verdict != "" {
			verdictText = VerdictColor(verdict).Sprint(verdict)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ShortID(e.ID),
			displayDate(e),
			bugCount(e),
			TrendArrow(history.TrendAt(entries, i)),
			verdictText,
			oneLine(e.InputSummary, 60),
		)
	}
	tw.Flush()
}

func displayHistoryMarkdown(w io.Writer, entries []history.Entry) {
	fmt.Fprintln(w, "| ID | Date | Bugs | Trend | Verdict | Input |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for i, e := range entries {
		verdict := e.Result.VerdictStatus()
		if verdict == "" {
			verdict = "-"
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
			ShortID(e.ID),
			displayDate(e),
			bugCount(e),
			history.TrendAt(entries, i),
			verdict,
			strings.ReplaceAll(oneLine(e.InputSummary, 60), "|", `\|`),
		)
	}
}

// DisplayEntry writes one history entry followed by its analysis.
func DisplayEntry(w io.Writer, e history.Entry, opts Options) error {
	if opts.Format == FormatJSON {
		return displayJSON(w, e)
	}
	if opts.Format == FormatYAML {
		return displayYAML(w, e)
	}
	white := color.New(color.FgWhite, color.Bold)
	if opts.Format == FormatMarkdown {
		fmt.Fprintf(w, "<!-- %s analyzed %s -->\n", e.ID, e.Date)
	} else {
		white.Fprintf(w, "Analysis %s\n", e.ID)
		fmt.Fprintf(w, "   Date:  %s\n", displayDate(e))
		fmt.Fprintf(w, "   Input: %s\n", oneLine(e.InputSummary, 100))
	}
	return DisplayResults(w, e.Result, opts)
}

// TrendArrow renders a trend for terminals. Fewer bugs reads as good news.
func TrendArrow(t history.Trend) string {
	switch t {
	case history.TrendIncreasing:
		return color.RedString("▲")
	case history.TrendDecreasing:
		return color.GreenString("▼")
	case history.TrendFlat:
		return "="
	default:
		return " "
	}
}

func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func displayDate(e history.Entry) string {
	t := e.Time()
	if t.IsZero() {
		return e.Date
	}
	return t.Local().Format("2006-01-02 15:04")
}

func bugCount(e history.Entry) string {
	if n, ok := e.Result.TotalBugs(); ok {
		return fmt.Sprint(n)
	}
	return "-"
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
