package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"testpilot/internal/config"
	"testpilot/internal/dashboard"
	"testpilot/internal/history"
	"testpilot/internal/httpx"
	"testpilot/internal/integrations/agent"
	"testpilot/internal/integrations/llm"
	"testpilot/internal/storage/filekv"
	"testpilot/internal/storage/sqlite"
)

// runtime holds what a command needs to read or change history.
type runtime struct {
	cfg  config.Config
	db   *sql.DB
	ctrl *dashboard.Controller
}

func (r *runtime) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// openRuntime builds the history slot and controller. The agent is only
// built when withAgent is set, so history commands work without credentials.
func openRuntime(ctx context.Context, cfg config.Config, withAgent bool) (*runtime, error) {
	timeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf("Config loaded. Agent=%s LLM=%s History=%s Timezone=%s ExternalHTTPTimeout=%s",
		cfg.AgentProvider, cfg.LLMProvider, cfg.HistoryBackend, cfg.Timezone, timeout)

	rt := &runtime{cfg: cfg}
	opts := dashboard.Options{AgentID: cfg.AgentID, Key: cfg.HistoryKey}

	switch cfg.HistoryBackend {
	case config.HistoryBackendFile:
		opts.Slot = filekv.New(cfg.HistoryDir)
		log.Printf("History stored in %s", cfg.HistoryDir)
	default:
		db, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		log.Printf("Database initialized at %s", cfg.DBPath)
		rt.db = db
		opts.Slot = sqlite.NewKV(db)
	}

	if withAgent {
		if err := cfg.ValidateAgent(); err != nil {
			rt.Close()
			return nil, err
		}
		opts.Agent = buildAgent(cfg)
		if rt.db != nil {
			opts.OnRun = runRecorder(rt.db, providerName(cfg))
		}
	}

	rt.ctrl = dashboard.New(ctx, opts)
	return rt, nil
}

func buildAgent(cfg config.Config) agent.Agent {
	if cfg.AgentProvider == config.AgentProviderHTTP {
		return agent.HTTPAgent{
			URL:    cfg.AgentURL,
			APIKey: cfg.AgentAPIKey,
			Client: httpx.ExternalHTTPClient(),
		}
	}
	return agent.LLMAgent{LLM: llm.Client{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		HTTPClient:      httpx.ExternalHTTPClient(),
	}}
}

func providerName(cfg config.Config) string {
	if cfg.AgentProvider == config.AgentProviderHTTP {
		return config.AgentProviderHTTP
	}
	return cfg.LLMProvider
}

// runRecorder writes each analysis attempt to the run log.
func runRecorder(db *sql.DB, provider string) func(dashboard.Run) {
	return func(r dashboard.Run) {
		err := sqlite.InsertRun(context.Background(), db, sqlite.Run{
			EntryID:   r.EntryID,
			Provider:  provider,
			Outcome:   r.Outcome,
			Detail:    r.Detail,
			Duration:  r.Duration,
			StartedAt: r.StartedAt,
		})
		if err != nil {
			log.Printf("run log insert error (non-fatal): %v", err)
		}
	}
}

func (r *runtime) history() history.Store {
	return history.New(r.ctrl.History()...)
}
