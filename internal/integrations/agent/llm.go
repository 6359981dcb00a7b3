package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"testpilot/internal/integrations/llm"

	"golang.org/x/sync/errgroup"
)

// Completer is the part of llm.Client the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, llm.Usage, error)
}

// LLMAgent runs the bug detection and report generator steps locally and
// returns their answers in the hosted agent's envelope. Both reports are
// sent as JSON strings, as the hosted pipeline does.
type LLMAgent struct {
	LLM Completer
}

func (a LLMAgent) Call(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	var bugText, reportText string
	var bugUsage, reportUsage llm.Usage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, usage, err := a.LLM.Complete(gctx, bugDetectionPrompt, req.Message)
		if err != nil {
			return fmt.Errorf("bug detection: %w", err)
		}
		bugText, bugUsage = llm.StripFences(text), usage
		return nil
	})
	g.Go(func() error {
		text, usage, err := a.LLM.Complete(gctx, reportGeneratorPrompt, req.Message)
		if err != nil {
			return fmt.Errorf("report generator: %w", err)
		}
		reportText, reportUsage = llm.StripFences(text), usage
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var total llm.Usage
	total.Add(bugUsage)
	total.Add(reportUsage)
	log.Printf("agent llm pipeline done tokens=%d duration=%s", total.TotalTokens(), time.Since(start).Round(time.Millisecond))

	response, err := json.Marshal(map[string]any{
		"result": map[string]string{
			"bug_report":  bugText,
			"test_report": reportText,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("encoding pipeline response: %w", err)
	}
	raw, err := json.Marshal(envelope{Success: true, Response: response})
	if err != nil {
		return Result{}, fmt.Errorf("encoding pipeline envelope: %w", err)
	}
	return Result{Success: true, Response: response, Envelope: raw}, nil
}
