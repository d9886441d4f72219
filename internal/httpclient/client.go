// Package httpclient provides a shared HTTP client factory for provider
// backends with unified transport configuration.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Config holds transport options for provider HTTP clients.
type Config struct {
	// Timeout limits a whole request, including reading the body.
	Timeout time.Duration

	// DialTimeout limits connection establishment.
	DialTimeout time.Duration

	// MaxIdleConnsPerHost controls keep-alive connections per backend host.
	MaxIdleConnsPerHost int

	// TLSHandshakeTimeout limits the TLS handshake.
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns defaults sized for interactive editor requests:
// motion computations should answer in seconds, not minutes.
func DefaultConfig() Config {
	return Config{
		Timeout:             60 * time.Second,
		DialTimeout:         10 * time.Second,
		MaxIdleConnsPerHost: 4,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// New creates an HTTP client from cfg.
func New(cfg Config) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// NewDefault creates an HTTP client with default configuration.
func NewDefault() *http.Client {
	return New(DefaultConfig())
}
