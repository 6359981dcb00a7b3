package digest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"testpilot/internal/config"
	"testpilot/internal/dashboard"
	"testpilot/internal/domain"
	"testpilot/internal/history"
	"testpilot/internal/storage/sqlite"

	"github.com/slack-go/slack"
)

const unknownVerdict = "unknown"

// Digest summarizes the stored history and the analysis runs since the
// previous digest.
type Digest struct {
	Entries     int
	Verdicts    map[string]int
	LatestBugs  int
	HasLatest   bool
	LatestTrend history.Trend
	Runs        map[string]int
	Since       time.Time
}

// Poster is the part of the Slack client the scheduler needs.
type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

func BuildDigest(entries []history.Entry, runs []sqlite.Run, since time.Time) Digest {
	d := Digest{
		Entries:  len(entries),
		Verdicts: make(map[string]int),
		Runs:     make(map[string]int),
		Since:    since,
	}
	for _, e := range entries {
		key := domain.VerdictKey(e.Result.VerdictStatus())
		if key == "" {
			key = unknownVerdict
		}
		d.Verdicts[key]++
	}
	if len(entries) > 0 {
		d.LatestBugs, d.HasLatest = entries[0].Result.TotalBugs()
		d.LatestTrend = history.TrendAt(entries, 0)
	}
	for _, r := range runs {
		d.Runs[r.Outcome]++
	}
	return d
}

// FormatDigest renders the digest as Slack mrkdwn.
func FormatDigest(d Digest) string {
	var b strings.Builder
	b.WriteString("*TestPilot digest*\n")
	if d.Entries == 0 {
		b.WriteString("No analyses in history.\n")
	} else {
		fmt.Fprintf(&b, "Analyses in history: %d\n", d.Entries)
		keys := make([]string, 0, len(d.Verdicts))
		for k := range d.Verdicts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s %d", k, d.Verdicts[k]))
		}
		fmt.Fprintf(&b, "Verdicts: %s\n", strings.Join(parts, ", "))
		if d.HasLatest {
			fmt.Fprintf(&b, "Latest analysis: %d bugs", d.LatestBugs)
			if d.LatestTrend != history.TrendUndefined {
				fmt.Fprintf(&b, " (%s)", d.LatestTrend)
			}
			b.WriteString("\n")
		}
	}

	total := 0
	for _, n := range d.Runs {
		total += n
	}
	if total > 0 {
		fmt.Fprintf(&b, "Runs since %s: %d (accepted %d, rejected %d, failed %d, superseded %d)\n",
			d.Since.Format("Mon Jan 2 15:04"),
			total,
			d.Runs[dashboard.OutcomeAccepted],
			d.Runs[dashboard.OutcomeRejected],
			d.Runs[dashboard.OutcomeFailed],
			d.Runs[dashboard.OutcomeSuperseded],
		)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Post builds the digest from the current history and runs recorded since
// since, and posts it to the report channel.
func Post(ctx context.Context, cfg config.Config, db *sql.DB, entries []history.Entry, api Poster, since time.Time) error {
	var runs []sqlite.Run
	if db != nil {
		var err error
		runs, err = sqlite.RecentRuns(ctx, db, since)
		if err != nil {
			log.Printf("digest runs error: %v", err)
		}
	}
	text := FormatDigest(BuildDigest(entries, runs, since.In(cfg.Location)))
	if _, _, err := api.PostMessage(cfg.ReportChannelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post digest: %w", err)
	}
	return nil
}

// StartDigestScheduler posts a history digest to the report channel on the
// configured 5-field cron schedule (minute hour day-of-month month day-of-week).
func StartDigestScheduler(cfg config.Config, db *sql.DB, source func() []history.Entry, api Poster) {
	schedule := strings.TrimSpace(cfg.DigestSchedule)
	if schedule == "" {
		log.Println("Digest disabled (digest_schedule not set)")
		return
	}
	if cfg.ReportChannelID == "" {
		log.Println("Digest disabled: report_channel_id not set")
		return
	}

	sched, err := config.ParseSchedule(schedule)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v. Digest disabled", schedule, err)
		return
	}
	log.Printf("Digest scheduled (cron: %s) to channel %s", schedule, cfg.ReportChannelID)

	go func() {
		last := time.Now().In(cfg.Location)
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			if err := Post(context.Background(), cfg, db, source(), api, last); err != nil {
				log.Printf("Digest error: %v", err)
				continue
			}
			last = next
			log.Printf("Digest posted to %s", cfg.ReportChannelID)
		}
	}()
}
