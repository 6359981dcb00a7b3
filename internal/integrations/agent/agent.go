// Package agent calls the analysis agent that turns test output into reports.
package agent

import (
	"context"
	"encoding/json"
)

// DefaultAgentID is the coordinator agent of the hosted pipeline.
const DefaultAgentID = "69995b5033bee1a8dbeac2c3"

type Request struct {
	Message string `json:"message"`
	AgentID string `json:"agentId"`
}

// Result is the agent's answer. Envelope holds the full response body and is
// what the normalizer consumes; Response is its "response" field.
type Result struct {
	Success  bool
	Response json.RawMessage
	Error    string
	Envelope []byte
}

type Agent interface {
	Call(ctx context.Context, req Request) (Result, error)
}

type envelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}
