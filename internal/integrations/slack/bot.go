package slackbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"testpilot/internal/config"
	"testpilot/internal/dashboard"
	"testpilot/internal/domain"
	"testpilot/internal/history"
	"testpilot/internal/normalize"
	"testpilot/internal/report"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	cmdAnalyze       = "/analyze"
	cmdHistory       = "/history"
	cmdHistoryDelete = "/history-delete"
	cmdHistoryClear  = "/history-clear"
	cmdHelp          = "/testpilot-help"

	sampleKeyword = "sample"
)

// messenger is the slice of the Slack API the command handlers use.
type messenger interface {
	Post(channelID, text string) error
	PostEphemeral(channelID, userID, text string) error
	Upload(path, channelID, title, comment string) error
}

type slackMessenger struct {
	api *slack.Client
}

func (m slackMessenger) Post(channelID, text string) error {
	_, _, err := m.api.PostMessage(channelID, slack.MsgOptionText(text, false))
	return err
}

func (m slackMessenger) PostEphemeral(channelID, userID, text string) error {
	_, err := m.api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	return err
}

func (m slackMessenger) Upload(path, channelID, title, comment string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() <= 0 {
		return fmt.Errorf("generated file is empty path=%s", path)
	}
	_, err = m.api.UploadFileV2(slack.UploadFileV2Parameters{
		File:           path,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(path),
		Channel:        channelID,
		Title:          title,
		InitialComment: comment,
	})
	return err
}

type Bot struct {
	cfg  config.Config
	ctrl *dashboard.Controller
	msg  messenger
}

func StartSlackBot(cfg config.Config, api *slack.Client, ctrl *dashboard.Controller) error {
	client := socketmode.New(api)
	bot := &Bot{cfg: cfg, ctrl: ctrl, msg: slackMessenger{api: api}}

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go bot.handleSlashCommand(context.Background(), cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go bot.handleEventsAPI(eventsAPIEvent)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case cmdAnalyze:
		b.handleAnalyze(ctx, cmd)
	case cmdHistory:
		b.handleHistory(cmd)
	case cmdHistoryDelete:
		b.handleHistoryDelete(ctx, cmd)
	case cmdHistoryClear:
		b.handleHistoryClear(ctx, cmd)
	case cmdHelp:
		b.postEphemeral(cmd, helpText())
	}
}

func (b *Bot) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MemberJoinedChannelEvent:
		log.Printf("member-joined user=%s channel=%s", ev.User, ev.Channel)
		intro := "Hi! I'm TestPilot. Paste test output into `/analyze` and I'll report bugs, a test summary and a CI verdict.\n" +
			"Try `/analyze sample`, or `/testpilot-help` for all commands."
		if err := b.msg.PostEphemeral(ev.Channel, ev.User, intro); err != nil {
			log.Printf("member-joined intro error user=%s channel=%s: %v", ev.User, ev.Channel, err)
		}
	}
}

func (b *Bot) handleAnalyze(ctx context.Context, cmd slack.SlashCommand) {
	input := analyzeInput(cmd.Text)
	if input == "" {
		b.postEphemeral(cmd, "Usage: `/analyze <test output>` or `/analyze sample`")
		return
	}

	b.postEphemeral(cmd, "Analyzing...")
	log.Printf("analyze user=%s input-length=%d", cmd.UserID, len(input))

	entry, err := b.ctrl.AnalyzeAs(ctx, cmd.UserID, input)
	if err != nil {
		log.Printf("analyze error user=%s: %v", cmd.UserID, err)
		b.postEphemeral(cmd, analyzeErrorText(err))
		return
	}

	if err := b.msg.Post(cmd.ChannelID, formatResultMessage(entry, b.cfg)); err != nil {
		log.Printf("Error posting analysis: %v", err)
		b.postEphemeral(cmd, "Error posting analysis to channel. Check bot permissions.")
		return
	}

	path, err := report.WriteFile(report.Markdown(entry.Result), b.cfg.ReportOutputDir, entry.Time().In(location(b.cfg)), entry.ID)
	if err != nil {
		log.Printf("Error writing report file: %v", err)
		b.postEphemeral(cmd, fmt.Sprintf("Error writing report file: %v", err))
		return
	}
	comment := fmt.Sprintf("Full report for analysis %s", shortID(entry.ID))
	if err := b.msg.Upload(path, cmd.ChannelID, "TestPilot analysis report", comment); err != nil {
		log.Printf("Error uploading report file: %v", err)
		b.postEphemeral(cmd, fmt.Sprintf("Report saved to %s but the upload failed.", path))
		return
	}
	log.Printf("analyze done id=%s file=%s", entry.ID, path)
}

func (b *Bot) handleHistory(cmd slack.SlashCommand) {
	term, verdict := parseHistoryArgs(cmd.Text)
	entries := b.ctrl.Query(term, verdict)
	b.postEphemeral(cmd, formatHistoryList(entries, b.cfg))
	log.Printf("history user=%s term=%q verdict=%q results=%d", cmd.UserID, term, verdict, len(entries))
}

func (b *Bot) handleHistoryDelete(ctx context.Context, cmd slack.SlashCommand) {
	id := strings.TrimSpace(cmd.Text)
	if id == "" {
		b.postEphemeral(cmd, "Usage: `/history-delete <id>` (the short id from `/history` works)")
		return
	}
	entry, err := b.ctrl.Lookup(id)
	if err != nil {
		b.postEphemeral(cmd, err.Error())
		return
	}
	if !b.ctrl.Delete(ctx, entry.ID) {
		b.postEphemeral(cmd, fmt.Sprintf("Analysis %s was already removed.", shortID(entry.ID)))
		return
	}
	b.postEphemeral(cmd, fmt.Sprintf("Deleted analysis %s.", shortID(entry.ID)))
	log.Printf("history-delete user=%s id=%s", cmd.UserID, entry.ID)
}

func (b *Bot) handleHistoryClear(ctx context.Context, cmd slack.SlashCommand) {
	if strings.TrimSpace(cmd.Text) != "confirm" {
		b.postEphemeral(cmd, "This removes every stored analysis. Run `/history-clear confirm` to proceed.")
		return
	}
	n := b.ctrl.Clear(ctx)
	b.postEphemeral(cmd, fmt.Sprintf("Cleared %d analyses.", n))
	log.Printf("history-clear user=%s removed=%d", cmd.UserID, n)
}

func (b *Bot) postEphemeral(cmd slack.SlashCommand, text string) {
	if err := b.msg.PostEphemeral(cmd.ChannelID, cmd.UserID, text); err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}

// analyzeInput maps the slash command text to analysis input. The keyword
// "sample" loads the bundled test run.
func analyzeInput(text string) string {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, sampleKeyword) {
		return domain.SampleInput
	}
	return text
}

func analyzeErrorText(err error) string {
	var agentErr *dashboard.AgentError
	switch {
	case errors.Is(err, dashboard.ErrEmptyInput):
		return "Usage: `/analyze <test output>` or `/analyze sample`"
	case errors.Is(err, dashboard.ErrSuperseded):
		return "A newer analysis replaced this one before it finished."
	case errors.As(err, &agentErr):
		return agentErr.Message
	case errors.Is(err, normalize.ErrRejected):
		return "The agent's response could not be parsed. Nothing was saved."
	default:
		return fmt.Sprintf("Analysis failed: %v", err)
	}
}

// parseHistoryArgs splits "/history [verdict:<status>] [search words]".
func parseHistoryArgs(text string) (term, verdict string) {
	verdict = history.VerdictAll
	var words []string
	for _, f := range strings.Fields(text) {
		if v, ok := strings.CutPrefix(strings.ToLower(f), "verdict:"); ok && v != "" {
			verdict = domain.VerdictKey(v)
			continue
		}
		words = append(words, f)
	}
	return strings.Join(words, " "), verdict
}

func helpText() string {
	return strings.Join([]string{
		"*TestPilot Commands*",
		"",
		"`/analyze <test output>` — Analyze pasted test output.",
		"`/analyze sample` — Analyze the bundled sample run.",
		"`/history [verdict:<status>] [search]` — List recent analyses.",
		">*Example:* `/history verdict:deploy_blocked login`",
		"`/history-delete <id>` — Delete one analysis.",
		"`/history-clear confirm` — Delete every analysis.",
		"`/testpilot-help` — Show this help.",
	}, "\n")
}
