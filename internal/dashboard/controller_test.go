package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"testpilot/internal/history"
	"testpilot/internal/integrations/agent"
	"testpilot/internal/normalize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acceptedEnvelope = `{"success":true,"response":{"result":"{\"bug_report\":{\"total_bugs\":2},\"test_report\":{\"ci_verdict\":{\"status\":\"needs_attention\"}}}"}}`

type agentFunc func(ctx context.Context, req agent.Request) (agent.Result, error)

func (f agentFunc) Call(ctx context.Context, req agent.Request) (agent.Result, error) {
	return f(ctx, req)
}

func envelopeAgent(env string) agentFunc {
	return func(context.Context, agent.Request) (agent.Result, error) {
		return agent.Result{Success: true, Envelope: []byte(env)}, nil
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
}

func newController(t *testing.T, a agent.Agent, slot history.Slot) (*Controller, *[]Run) {
	t.Helper()
	var runs []Run
	var mu sync.Mutex
	c := New(context.Background(), Options{
		Agent: a,
		Slot:  slot,
		Now:   fixedNow,
		OnRun: func(r Run) {
			mu.Lock()
			defer mu.Unlock()
			runs = append(runs, r)
		},
	})
	return c, &runs
}

func TestAnalyzeAcceptsAndPersists(t *testing.T) {
	var got agent.Request
	a := agentFunc(func(_ context.Context, req agent.Request) (agent.Result, error) {
		got = req
		return agent.Result{Success: true, Envelope: []byte(acceptedEnvelope)}, nil
	})
	slot := history.NewMemorySlot()
	c, runs := newController(t, a, slot)

	entry, err := c.Analyze(context.Background(), "FAIL TestLogin")
	require.NoError(t, err)

	assert.Equal(t, MessagePrefix+"FAIL TestLogin", got.Message)
	assert.Equal(t, agent.DefaultAgentID, got.AgentID)
	assert.Equal(t, "FAIL TestLogin", entry.FullInput)
	assert.Equal(t, "2026-10-19T09:00:00.000Z", entry.Date)
	assert.Equal(t, "needs_attention", entry.Result.VerdictStatus())

	require.Len(t, c.History(), 1)
	reloaded := history.Load(context.Background(), slot, history.DefaultKey)
	assert.Equal(t, c.History(), reloaded.Entries())

	require.Len(t, *runs, 1)
	assert.Equal(t, OutcomeAccepted, (*runs)[0].Outcome)
	assert.Equal(t, entry.ID, (*runs)[0].EntryID)
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	called := false
	a := agentFunc(func(context.Context, agent.Request) (agent.Result, error) {
		called = true
		return agent.Result{}, nil
	})
	c, _ := newController(t, a, nil)

	_, err := c.Analyze(context.Background(), "  \n\t ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.False(t, called)
}

func TestAnalyzeRejectedResponseWritesNothing(t *testing.T) {
	slot := history.NewMemorySlot()
	c, runs := newController(t, envelopeAgent(`{"success":true,"response":{"result":{"summary":"done"}}}`), slot)

	_, err := c.Analyze(context.Background(), "input")
	assert.ErrorIs(t, err, normalize.ErrRejected)
	assert.Empty(t, c.History())
	_, ok, _ := slot.Get(context.Background(), history.DefaultKey)
	assert.False(t, ok)
	require.Len(t, *runs, 1)
	assert.Equal(t, OutcomeRejected, (*runs)[0].Outcome)
}

func TestAnalyzeAgentFailure(t *testing.T) {
	c, _ := newController(t, agentFunc(func(context.Context, agent.Request) (agent.Result, error) {
		return agent.Result{Success: false, Error: "agent busy"}, nil
	}), nil)
	_, err := c.Analyze(context.Background(), "input")
	var agentErr *AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "agent busy", agentErr.Message)

	c, _ = newController(t, agentFunc(func(context.Context, agent.Request) (agent.Result, error) {
		return agent.Result{Success: false}, nil
	}), nil)
	_, err = c.Analyze(context.Background(), "input")
	assert.EqualError(t, err, defaultFailureMessage)

	boom := errors.New("connection refused")
	c, runs := newController(t, agentFunc(func(context.Context, agent.Request) (agent.Result, error) {
		return agent.Result{}, boom
	}), nil)
	_, err = c.Analyze(context.Background(), "input")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, c.History())
	assert.Equal(t, OutcomeFailed, (*runs)[0].Outcome)
}

func TestAnalyzeUsesResponseWhenEnvelopeMissing(t *testing.T) {
	c, _ := newController(t, agentFunc(func(context.Context, agent.Request) (agent.Result, error) {
		return agent.Result{Success: true, Response: []byte(`{"result":{"bug_report":{"total_bugs":0}}}`)}, nil
	}), nil)
	entry, err := c.Analyze(context.Background(), "input")
	require.NoError(t, err)
	total, ok := entry.Result.TotalBugs()
	assert.True(t, ok)
	assert.Equal(t, 0, total)
}

func TestAnalyzeSupersededResponseIsDropped(t *testing.T) {
	started := make(chan struct{})
	a := agentFunc(func(ctx context.Context, req agent.Request) (agent.Result, error) {
		if req.Message == MessagePrefix+"first" {
			close(started)
			<-ctx.Done()
			// A late but otherwise valid answer.
			return agent.Result{Success: true, Envelope: []byte(acceptedEnvelope)}, nil
		}
		return agent.Result{Success: true, Envelope: []byte(acceptedEnvelope)}, nil
	})
	c, runs := newController(t, a, nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background(), "first")
		firstErr <- err
	}()
	<-started

	second, err := c.Analyze(context.Background(), "second")
	require.NoError(t, err)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first analysis never returned")
	}

	entries := c.History()
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, "second", entries[0].FullInput)

	outcomes := map[string]int{}
	for _, r := range *runs {
		outcomes[r.Outcome]++
	}
	assert.Equal(t, map[string]int{OutcomeAccepted: 1, OutcomeSuperseded: 1}, outcomes)
}

func TestAnalyzeAsSupersedesPerOwner(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	a := agentFunc(func(ctx context.Context, req agent.Request) (agent.Result, error) {
		if req.Message == MessagePrefix+"slow" {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return agent.Result{}, ctx.Err()
			}
		}
		return agent.Result{Success: true, Envelope: []byte(acceptedEnvelope)}, nil
	})
	c, runs := newController(t, a, nil)

	slowErr := make(chan error, 1)
	go func() {
		_, err := c.AnalyzeAs(context.Background(), "U1", "slow")
		slowErr <- err
	}()
	<-started

	_, err := c.AnalyzeAs(context.Background(), "U2", "fast")
	require.NoError(t, err)
	close(release)

	select {
	case err := <-slowErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("slow analysis never returned")
	}

	entries := c.History()
	require.Len(t, entries, 2)
	assert.Equal(t, "slow", entries[0].FullInput)
	assert.Equal(t, "fast", entries[1].FullInput)
	for _, r := range *runs {
		assert.Equal(t, OutcomeAccepted, r.Outcome)
	}
}

func TestHistoryMutations(t *testing.T) {
	slot := history.NewMemorySlot()
	c, _ := newController(t, envelopeAgent(acceptedEnvelope), slot)
	ctx := context.Background()

	first, err := c.Analyze(ctx, "login suite")
	require.NoError(t, err)
	_, err = c.Analyze(ctx, "checkout suite")
	require.NoError(t, err)

	assert.Len(t, c.Query("LOGIN", history.VerdictAll), 1)
	assert.Len(t, c.Query("", "needs_attention"), 2)
	assert.Empty(t, c.Query("", "deploy_blocked"))

	got, ok := c.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, "login suite", got.FullInput)
	byPrefix, err := c.Lookup(first.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, first.ID, byPrefix.ID)

	assert.False(t, c.Delete(ctx, "missing"))
	assert.True(t, c.Delete(ctx, first.ID))
	assert.Len(t, c.History(), 1)
	assert.Len(t, history.Load(ctx, slot, history.DefaultKey).Entries(), 1)

	assert.Equal(t, 1, c.Clear(ctx))
	assert.Empty(t, c.History())
	assert.Equal(t, 0, history.Load(ctx, slot, history.DefaultKey).Len())
}

func TestNewLoadsPersistedHistory(t *testing.T) {
	ctx := context.Background()
	slot := history.NewMemorySlot()
	seed := history.New(history.Entry{ID: "seed", Date: "2026-10-18T10:00:00.000Z", InputSummary: "old", FullInput: "old"})
	history.Save(ctx, slot, history.DefaultKey, seed)

	c, _ := newController(t, envelopeAgent(acceptedEnvelope), slot)
	require.Len(t, c.History(), 1)
	assert.Equal(t, "seed", c.History()[0].ID)

	_, err := c.Analyze(ctx, "new run")
	require.NoError(t, err)
	entries := c.History()
	require.Len(t, entries, 2)
	assert.Equal(t, "new run", entries[0].FullInput)
	assert.Equal(t, "seed", entries[1].ID)
}
