package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	AgentProviderLLM  = "llm"
	AgentProviderHTTP = "http"

	HistoryBackendSQLite = "sqlite"
	HistoryBackendFile   = "file"
)

type Config struct {
	AgentProvider string `yaml:"agent_provider"`
	AgentURL      string `yaml:"agent_url"`
	AgentAPIKey   string `yaml:"agent_api_key"`
	AgentID       string `yaml:"agent_id"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	HistoryBackend string `yaml:"history_backend"`
	DBPath         string `yaml:"db_path"`
	HistoryDir     string `yaml:"history_dir"`
	HistoryKey     string `yaml:"history_key"`

	ReportOutputDir            string `yaml:"report_output_dir"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	SlackAppToken   string `yaml:"slack_app_token"`
	ReportChannelID string `yaml:"report_channel_id"`
	DigestSchedule  string `yaml:"digest_schedule"`
	Timezone        string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.AgentProvider, "AGENT_PROVIDER")
	envOverride(&cfg.AgentURL, "AGENT_URL")
	envOverride(&cfg.AgentAPIKey, "AGENT_API_KEY")
	envOverride(&cfg.AgentID, "AGENT_ID")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.HistoryBackend, "HISTORY_BACKEND")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.HistoryDir, "HISTORY_DIR")
	envOverride(&cfg.HistoryKey, "HISTORY_KEY")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")

	cfg.AgentProvider = strings.ToLower(strings.TrimSpace(cfg.AgentProvider))
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.HistoryBackend = strings.ToLower(strings.TrimSpace(cfg.HistoryBackend))

	if cfg.AgentProvider == "" {
		cfg.AgentProvider = AgentProviderLLM
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = HistoryBackendSQLite
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./testpilot.db"
	}
	if cfg.HistoryDir == "" {
		cfg.HistoryDir = "./history"
	}
	if cfg.HistoryKey == "" {
		cfg.HistoryKey = "testpilot_history"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	switch cfg.AgentProvider {
	case AgentProviderLLM, AgentProviderHTTP:
	default:
		log.Fatalf("agent_provider must be 'llm' or 'http', got '%s'", cfg.AgentProvider)
	}
	switch cfg.LLMProvider {
	case "anthropic", "openai":
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}
	switch cfg.HistoryBackend {
	case HistoryBackendSQLite, HistoryBackendFile:
	default:
		log.Fatalf("history_backend must be 'sqlite' or 'file', got '%s'", cfg.HistoryBackend)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.DigestSchedule != "" {
		if _, err := ParseSchedule(cfg.DigestSchedule); err != nil {
			log.Fatalf("invalid digest_schedule '%s': %v", cfg.DigestSchedule, err)
		}
		if cfg.ReportChannelID == "" {
			log.Printf("WARNING: digest_schedule is set but report_channel_id is not. The digest will not be posted.")
		}
	}

	return cfg
}

// ValidateAgent reports missing credentials for the configured agent.
// Commands that never call the agent skip it.
func (c Config) ValidateAgent() error {
	if c.AgentProvider == AgentProviderHTTP {
		if c.AgentURL == "" {
			return fmt.Errorf("agent_url is required when agent_provider=http")
		}
		return nil
	}
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

func (c Config) DigestEnabled() bool {
	return c.DigestSchedule != "" && c.ReportChannelID != ""
}

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
