package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"testpilot/internal/config"
	"testpilot/internal/digest"
	slackbot "testpilot/internal/integrations/slack"
	"testpilot/internal/storage/sqlite"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot and the scheduled digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if !cfg.SlackConfigured() {
				return errors.New("slack_bot_token and slack_app_token are required for serve")
			}
			rt, err := openRuntime(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			os.MkdirAll(cfg.ReportOutputDir, 0755)
			log.Printf("Report output dir: %s", cfg.ReportOutputDir)

			api := slack.New(
				cfg.SlackBotToken,
				slack.OptionAppLevelToken(cfg.SlackAppToken),
			)

			digest.StartDigestScheduler(cfg, rt.db, rt.ctrl.History, api)

			log.Println("Starting TestPilot bot...")
			if err := slackbot.StartSlackBot(cfg, api, rt.ctrl); err != nil {
				return fmt.Errorf("slack bot: %w", err)
			}
			return nil
		},
	}
}

func newDigestCmd() *cobra.Command {
	var since time.Duration
	var post bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Print (or post) the history digest",
		Long: `Summarize stored analyses and the analysis runs in the last --since window.
With --post the digest goes to report_channel_id, as the scheduled digest does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			rt, err := openRuntime(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			from := time.Now().Add(-since)
			if post {
				if cfg.SlackBotToken == "" || cfg.ReportChannelID == "" {
					return errors.New("slack_bot_token and report_channel_id are required for --post")
				}
				return digest.Post(cmd.Context(), cfg, rt.db, rt.ctrl.History(), slack.New(cfg.SlackBotToken), from)
			}

			var runs []sqlite.Run
			if rt.db != nil {
				runs, err = sqlite.RecentRuns(cmd.Context(), rt.db, from)
				if err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest.FormatDigest(digest.BuildDigest(rt.ctrl.History(), runs, from.In(cfg.Location))))
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window for the run counts")
	cmd.Flags().BoolVar(&post, "post", false, "Post to report_channel_id instead of printing")
	return cmd
}
