// Package ollama provides motion computation over a local Ollama instance.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"gomotion/internal/core"
	"gomotion/internal/httpclient"
	"gomotion/internal/providers"
)

// Registration provides registry wiring for the Ollama provider.
var Registration = providers.Registration{
	Type: "ollama",
	New:  New,
}

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.2"

	healthCheckTimeout = 5 * time.Second
)

// Provider implements core.MotionProvider for Ollama.
// Ollama requires no API key; a bearer token is sent if configured.
type Provider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

// New creates an uninitialized Ollama provider.
func New() core.MotionProvider {
	return &Provider{client: httpclient.NewDefault()}
}

// Initialize resolves the provider configuration.
func (p *Provider) Initialize(_ context.Context, config map[string]any) error {
	p.apiKey = providers.StringOption(config, "api_key", "")
	p.baseURL = providers.StringOption(config, "base_url", defaultBaseURL)
	p.model = providers.StringOption(config, "model", defaultModel)
	return nil
}

// ComputeMotion asks the local chat endpoint for a keystroke sequence.
func (p *Provider) ComputeMotion(ctx context.Context, req *core.MotionRequest) (*core.MotionResult, error) {
	system, user := providers.BuildPrompt(req)
	body := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"format": "json",
		"stream": false,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewProviderError("ollama", "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewProviderError("ollama", "failed to build request", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError("ollama", "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError("ollama", "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return nil, core.NewProviderError("ollama", msg, nil)
	}

	reply := gjson.GetBytes(raw, "message.content").String()
	if reply == "" {
		return nil, core.NewProviderError("ollama", "response contained no completion", nil)
	}
	return providers.ParseMotionReply("ollama", reply, time.Now().UTC())
}

// TestConnection verifies the Ollama server is running and the tags
// endpoint is reachable.
func (p *Provider) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// ConfigSchema describes the accepted configuration fields.
func (p *Provider) ConfigSchema() []core.ConfigField {
	return []core.ConfigField{
		{Name: "base_url", Type: "string", Default: defaultBaseURL, Description: "Ollama server URL"},
		{Name: "model", Type: "string", Default: defaultModel, Description: "Model used for motion computation"},
		{Name: "api_key", Type: "string", Description: "Optional bearer token for proxied Ollama setups"},
	}
}

// Metadata returns static provider information.
func (p *Provider) Metadata() core.ProviderMetadata {
	return core.ProviderMetadata{
		Name:         "ollama",
		Version:      "1.0.0",
		Capabilities: []string{"motion", "alternatives", "local"},
	}
}

// Dispose releases idle connections held by the provider's client.
func (p *Provider) Dispose() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) setHeaders(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}
