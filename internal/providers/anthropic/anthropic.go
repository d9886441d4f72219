// Package anthropic provides motion computation over the Anthropic
// messages API.
package anthropic

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

// Registration provides registry wiring for the Anthropic provider.
var Registration = providers.Registration{
	Type: "anthropic",
	New:  New,
}

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-3-5-haiku-latest"
	apiVersion     = "2023-06-01"

	maxReplyTokens     = 512
	healthCheckTimeout = 5 * time.Second
)

// Provider implements core.MotionProvider for the Anthropic API.
type Provider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

// New creates an uninitialized Anthropic provider.
func New() core.MotionProvider {
	return &Provider{client: httpclient.NewDefault()}
}

// Initialize resolves the provider configuration.
func (p *Provider) Initialize(_ context.Context, config map[string]any) error {
	p.apiKey = providers.StringOption(config, "api_key", "")
	if p.apiKey == "" {
		return core.NewConfigurationError("api_key", "is required for the anthropic provider")
	}
	p.baseURL = providers.StringOption(config, "base_url", defaultBaseURL)
	p.model = providers.StringOption(config, "model", defaultModel)
	return nil
}

// ComputeMotion asks the messages endpoint for a keystroke sequence.
func (p *Provider) ComputeMotion(ctx context.Context, req *core.MotionRequest) (*core.MotionResult, error) {
	system, user := providers.BuildPrompt(req)
	body := map[string]any{
		"model":      p.model,
		"max_tokens": maxReplyTokens,
		"system":     system,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewProviderError("anthropic", "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewProviderError("anthropic", "failed to build request", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError("anthropic", "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError("anthropic", "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return nil, core.NewProviderError("anthropic", msg, nil)
	}

	reply := gjson.GetBytes(raw, "content.0.text").String()
	if reply == "" {
		return nil, core.NewProviderError("anthropic", "response contained no completion", nil)
	}
	return providers.ParseMotionReply("anthropic", reply, time.Now().UTC())
}

// TestConnection probes the models endpoint with a short timeout.
func (p *Provider) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anthropic models endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// ConfigSchema describes the accepted configuration fields.
func (p *Provider) ConfigSchema() []core.ConfigField {
	return []core.ConfigField{
		{Name: "api_key", Type: "string", Required: true, Description: "Anthropic API key"},
		{Name: "base_url", Type: "string", Default: defaultBaseURL, Description: "API base URL"},
		{Name: "model", Type: "string", Default: defaultModel, Description: "Model used for motion computation"},
	}
}

// Metadata returns static provider information.
func (p *Provider) Metadata() core.ProviderMetadata {
	return core.ProviderMetadata{
		Name:         "anthropic",
		Version:      "1.0.0",
		Capabilities: []string{"motion", "alternatives"},
	}
}

// Dispose releases idle connections held by the provider's client.
func (p *Provider) Dispose() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
}
