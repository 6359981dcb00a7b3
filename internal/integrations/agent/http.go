package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"testpilot/internal/httpx"
)

const maxEnvelopeBytes = 8 << 20

// HTTPAgent posts requests to a hosted agent endpoint.
type HTTPAgent struct {
	URL    string
	APIKey string
	Client *http.Client
}

func (a HTTPAgent) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return httpx.ExternalHTTPClient()
}

func (a HTTPAgent) Call(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshaling agent request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		httpReq.Header.Set("x-api-key", a.APIKey)
	}

	resp, err := a.client().Do(httpReq)
	if err != nil {
		log.Printf("agent http error url=%s: %v", a.URL, err)
		return Result{}, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return Result{}, fmt.Errorf("reading agent response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return Result{}, fmt.Errorf("agent returned status %d", resp.StatusCode)
		}
		return Result{}, fmt.Errorf("agent response is not JSON: %w", err)
	}
	if resp.StatusCode >= 300 && env.Error == "" {
		env.Success = false
		env.Error = fmt.Sprintf("agent returned status %d", resp.StatusCode)
	}
	log.Printf("agent http response status=%d size=%d success=%t", resp.StatusCode, len(raw), env.Success)
	return Result{
		Success:  env.Success && resp.StatusCode < 300,
		Response: env.Response,
		Error:    env.Error,
		Envelope: raw,
	}, nil
}
