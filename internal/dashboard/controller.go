// Package dashboard runs analyses and owns the history they produce.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"testpilot/internal/history"
	"testpilot/internal/integrations/agent"
	"testpilot/internal/normalize"
)

// MessagePrefix starts every message sent to the agent.
const MessagePrefix = "Analyze the following test input:\n\n"

const defaultFailureMessage = "Analysis failed. Please try again."

var (
	ErrEmptyInput = errors.New("input is empty")
	ErrSuperseded = errors.New("analysis superseded by a newer request")
)

// AgentError is a failure reported by the agent itself.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string {
	return e.Message
}

// Run outcomes.
const (
	OutcomeAccepted   = "accepted"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

// Run describes one Analyze call for the run log.
type Run struct {
	EntryID   string
	Outcome   string
	Detail    string
	Duration  time.Duration
	StartedAt time.Time
}

type Options struct {
	Agent   agent.Agent
	AgentID string
	Slot    history.Slot
	Key     string
	Now     func() time.Time
	// OnRun, when set, is called once per Analyze call.
	OnRun func(Run)
}

// Controller serializes every history mutation. A new analysis cancels the
// one in flight for the same owner, and a late answer to a cancelled call is
// dropped.
type Controller struct {
	agent   agent.Agent
	agentID string
	slot    history.Slot
	key     string
	now     func() time.Time
	onRun   func(Run)

	mu       sync.Mutex
	store    history.Store
	seq      uint64
	inflight map[string]pending
}

// pending is the newest analysis of one owner.
type pending struct {
	seq    uint64
	cancel context.CancelFunc
}

// New loads the persisted history and returns a ready controller.
func New(ctx context.Context, opts Options) *Controller {
	c := &Controller{
		agent:    opts.Agent,
		agentID:  opts.AgentID,
		slot:     opts.Slot,
		key:      opts.Key,
		now:      opts.Now,
		onRun:    opts.OnRun,
		inflight: make(map[string]pending),
	}
	if c.agentID == "" {
		c.agentID = agent.DefaultAgentID
	}
	if c.slot == nil {
		c.slot = history.NewMemorySlot()
	}
	if c.key == "" {
		c.key = history.DefaultKey
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.store = history.Load(ctx, c.slot, c.key)
	return c
}

// Analyze sends input to the agent and records an accepted result.
func (c *Controller) Analyze(ctx context.Context, input string) (history.Entry, error) {
	return c.AnalyzeAs(ctx, "", input)
}

// AnalyzeAs is Analyze on behalf of owner. Only a newer call from the same
// owner supersedes it.
func (c *Controller) AnalyzeAs(ctx context.Context, owner, input string) (history.Entry, error) {
	if strings.TrimSpace(input) == "" {
		return history.Entry{}, ErrEmptyInput
	}
	start := c.now()

	c.mu.Lock()
	c.seq++
	seq := c.seq
	if prev, ok := c.inflight[owner]; ok {
		prev.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.inflight[owner] = pending{seq: seq, cancel: cancel}
	c.mu.Unlock()
	defer cancel()

	res, callErr := c.agent.Call(reqCtx, agent.Request{Message: MessagePrefix + input, AgentID: c.agentID})

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.inflight[owner]; !ok || cur.seq != seq {
		log.Printf("dashboard analysis superseded owner=%q seq=%d", owner, seq)
		c.record(Run{Outcome: OutcomeSuperseded, StartedAt: start})
		return history.Entry{}, ErrSuperseded
	}
	delete(c.inflight, owner)

	if callErr != nil {
		log.Printf("dashboard agent error: %v", callErr)
		c.record(Run{Outcome: OutcomeFailed, Detail: callErr.Error(), StartedAt: start})
		return history.Entry{}, fmt.Errorf("analysis failed: %w", callErr)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = defaultFailureMessage
		}
		log.Printf("dashboard agent reported failure: %s", msg)
		c.record(Run{Outcome: OutcomeFailed, Detail: msg, StartedAt: start})
		return history.Entry{}, &AgentError{Message: msg}
	}

	result, err := normalize.Response(envelopeOf(res))
	if err != nil {
		log.Printf("normalize rejected reason=%v", err)
		c.record(Run{Outcome: OutcomeRejected, Detail: err.Error(), StartedAt: start})
		return history.Entry{}, err
	}

	entry := history.NewEntry(input, result, c.now())
	c.store = c.store.Append(entry)
	c.persist(ctx)
	log.Printf("dashboard analysis accepted id=%s verdict=%q entries=%d", entry.ID, result.VerdictStatus(), c.store.Len())
	c.record(Run{EntryID: entry.ID, Outcome: OutcomeAccepted, StartedAt: start})
	return entry, nil
}

// envelopeOf returns the bytes the normalizer reads. Agents that only fill
// Response get a minimal envelope around it.
func envelopeOf(res agent.Result) []byte {
	if len(res.Envelope) > 0 {
		return res.Envelope
	}
	if len(res.Response) == 0 {
		return []byte(`{"success":true}`)
	}
	return []byte(`{"success":true,"response":` + string(res.Response) + `}`)
}

func (c *Controller) record(r Run) {
	if c.onRun == nil {
		return
	}
	r.Duration = c.now().Sub(r.StartedAt)
	c.onRun(r)
}

// persist writes the store; the request may already be cancelled, the write should still happen.
func (c *Controller) persist(ctx context.Context) {
	history.Save(context.WithoutCancel(ctx), c.slot, c.key, c.store)
}

// History returns all entries, newest first.
func (c *Controller) History() []history.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Entries()
}

func (c *Controller) Query(term, verdict string) []history.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Query(term, verdict)
}

func (c *Controller) Get(id string) (history.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(id)
}

// Lookup resolves a full id or a unique id prefix.
func (c *Controller) Lookup(prefix string) (history.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Lookup(prefix)
}

// Delete removes one entry and reports whether it existed.
func (c *Controller) Delete(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.store.Len()
	c.store = c.store.Remove(id)
	if c.store.Len() == before {
		return false
	}
	c.persist(ctx)
	return true
}

// Clear empties the history and returns how many entries were dropped.
func (c *Controller) Clear(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.store.Len()
	c.store = c.store.Clear()
	c.persist(ctx)
	return n
}
