// Package openai provides motion computation over the OpenAI chat API.
package openai

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

// Registration provides registry wiring for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New:  New,
}

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	healthCheckTimeout = 5 * time.Second
)

// Provider implements core.MotionProvider for OpenAI-compatible backends.
type Provider struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
}

// New creates an uninitialized OpenAI provider.
func New() core.MotionProvider {
	return &Provider{client: httpclient.NewDefault()}
}

// Initialize resolves the provider configuration.
func (p *Provider) Initialize(_ context.Context, config map[string]any) error {
	p.apiKey = providers.StringOption(config, "api_key", "")
	if p.apiKey == "" {
		return core.NewConfigurationError("api_key", "is required for the openai provider")
	}
	p.baseURL = providers.StringOption(config, "base_url", defaultBaseURL)
	p.model = providers.StringOption(config, "model", defaultModel)
	p.temperature = providers.FloatOption(config, "temperature", 0)
	return nil
}

// ComputeMotion asks the chat completions endpoint for a keystroke sequence.
func (p *Provider) ComputeMotion(ctx context.Context, req *core.MotionRequest) (*core.MotionResult, error) {
	system, user := providers.BuildPrompt(req)
	body := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature":     p.temperature,
		"response_format": map[string]string{"type": "json_object"},
	}

	raw, err := p.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	reply := gjson.GetBytes(raw, "choices.0.message.content").String()
	if reply == "" {
		return nil, core.NewProviderError("openai", "response contained no completion", nil)
	}
	return providers.ParseMotionReply("openai", reply, time.Now().UTC())
}

// TestConnection probes the models endpoint with a short timeout.
func (p *Provider) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai models endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// ConfigSchema describes the accepted configuration fields.
func (p *Provider) ConfigSchema() []core.ConfigField {
	return []core.ConfigField{
		{Name: "api_key", Type: "string", Required: true, Description: "OpenAI API key"},
		{Name: "base_url", Type: "string", Default: defaultBaseURL, Description: "API base URL for OpenAI-compatible backends"},
		{Name: "model", Type: "string", Default: defaultModel, Description: "Model used for motion computation"},
		{Name: "temperature", Type: "number", Default: 0.0, Description: "Sampling temperature"},
	}
}

// Metadata returns static provider information.
func (p *Provider) Metadata() core.ProviderMetadata {
	return core.ProviderMetadata{
		Name:         "openai",
		Version:      "1.0.0",
		Capabilities: []string{"motion", "alternatives", "json-mode"},
	}
}

// Dispose releases idle connections held by the provider's client.
func (p *Provider) Dispose() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) post(ctx context.Context, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewProviderError("openai", "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewProviderError("openai", "failed to build request", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, core.NewProviderError("openai", "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError("openai", "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return nil, core.NewProviderError("openai", msg, nil)
	}
	return raw, nil
}
