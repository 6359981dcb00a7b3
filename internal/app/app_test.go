package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"testpilot/internal/dashboard"
	"testpilot/internal/domain"
	"testpilot/internal/history"
	"testpilot/internal/integrations/agent"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// agentServer answers every request with the sample analysis.
func agentServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	result, err := json.Marshal(domain.SampleResult())
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req agent.Request
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.True(t, strings.HasPrefix(req.Message, dashboard.MessagePrefix))
		assert.Equal(t, agent.DefaultAgentID, req.AgentID)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"response":{"result":` + string(result) + `}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, backend, agentURL string) (reportDir string) {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{
		"AGENT_API_KEY", "AGENT_ID", "LLM_PROVIDER", "LLM_MODEL", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"HISTORY_KEY", "EXTERNAL_HTTP_TIMEOUT_SECONDS", "SLACK_BOT_TOKEN", "SLACK_APP_TOKEN",
		"REPORT_CHANNEL_ID", "DIGEST_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("AGENT_PROVIDER", "http")
	t.Setenv("AGENT_URL", agentURL)
	t.Setenv("HISTORY_BACKEND", backend)
	t.Setenv("HISTORY_DIR", filepath.Join(dir, "history"))
	t.Setenv("DB_PATH", filepath.Join(dir, "testpilot.db"))
	t.Setenv("REPORT_OUTPUT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("TIMEZONE", "UTC")
	return filepath.Join(dir, "reports")
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestAnalyzeSampleThenManageHistory(t *testing.T) {
	var calls atomic.Int32
	srv := agentServer(t, &calls)
	reportDir := setEnv(t, "file", srv.URL)

	out, errOut, err := run(t, "", "analyze", "--sample", "-o", "json", "--save-report", "--email-draft")
	require.NoError(t, err)
	var result domain.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.VerdictDeployBlocked, result.VerdictStatus())
	total, ok := result.TotalBugs()
	assert.True(t, ok)
	assert.Equal(t, 3, total)
	assert.Contains(t, errOut, "Report saved to")
	assert.Contains(t, errOut, "Email draft saved to")

	md, _ := filepath.Glob(filepath.Join(reportDir, "testpilot_*.md"))
	eml, _ := filepath.Glob(filepath.Join(reportDir, "testpilot_*.eml"))
	assert.Len(t, md, 1)
	assert.Len(t, eml, 1)

	_, _, err = run(t, "FAIL TestCheckout\nTests: 1 failed", "analyze", "-", "-o", "yaml")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	out, _, err = run(t, "", "history", "list", "-o", "json")
	require.NoError(t, err)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "FAIL TestCheckout\nTests: 1 failed", entries[0].FullInput)
	assert.Equal(t, domain.SampleInput, entries[1].FullInput)

	out, _, err = run(t, "", "history", "list", "--search", "checkout", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	checkoutID := entries[0].ID

	out, _, err = run(t, "", "history", "show", checkoutID[:8], "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# TestPilot AI Analysis Report")

	out, _, err = run(t, "", "history", "export")
	require.NoError(t, err)
	assert.Equal(t, 2, history.Parse([]byte(out)).Len())

	out, _, err = run(t, "", "history", "delete", checkoutID[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted analysis "+checkoutID)

	_, _, err = run(t, "", "history", "show", checkoutID)
	assert.ErrorIs(t, err, history.ErrNotFound)

	_, _, err = run(t, "", "history", "clear")
	assert.Error(t, err)
	out, _, err = run(t, "", "history", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 analyses")
}

func TestDigestCountsRecordedRuns(t *testing.T) {
	var calls atomic.Int32
	srv := agentServer(t, &calls)
	setEnv(t, "sqlite", srv.URL)

	_, _, err := run(t, "", "analyze", "--sample", "-o", "json")
	require.NoError(t, err)

	out, _, err := run(t, "", "digest")
	require.NoError(t, err)
	assert.Contains(t, out, "Analyses in history: 1")
	assert.Contains(t, out, "Verdicts: deploy_blocked 1")
	assert.Contains(t, out, ": 1 (accepted 1, rejected 0, failed 0, superseded 0)")
}

func TestAnalyzeWithoutAgentCredentials(t *testing.T) {
	setEnv(t, "file", "")
	t.Setenv("AGENT_PROVIDER", "llm")
	_, _, err := run(t, "", "analyze", "--sample")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic_api_key is required")
}

func TestServeRequiresSlackTokens(t *testing.T) {
	setEnv(t, "file", "http://127.0.0.1:0")
	_, _, err := run(t, "", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack_bot_token")
}

func TestReadInput(t *testing.T) {
	got, err := readInput(nil, nil, true)
	require.NoError(t, err)
	assert.Equal(t, domain.SampleInput, got)

	_, err = readInput(nil, []string{"run.log"}, true)
	assert.Error(t, err)
	_, err = readInput(nil, nil, false)
	assert.Error(t, err)

	got, err = readInput(strings.NewReader("from stdin"), []string{"-"}, false)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	got, err = readInput(nil, []string{path}, false)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	_, err = readInput(nil, []string{filepath.Join(t.TempDir(), "missing.log")}, false)
	assert.Error(t, err)
}

func TestParseHiddenSeverities(t *testing.T) {
	got, err := parseHiddenSeverities([]string{"Critical", " low", "", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Severity{domain.SeverityCritical, domain.SeverityLow, domain.SeverityUnknown}, got)

	_, err = parseHiddenSeverities([]string{"urgent"})
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "testpilot version dev\n", out)
}
