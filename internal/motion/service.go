// Package motion composes the result cache and provider registry into the
// compute path: look up cache, on miss obtain a provider and compute, then
// store the result.
package motion

import (
	"context"
	"log/slog"
	"time"

	"gomotion/internal/cache"
	"gomotion/internal/core"
	"gomotion/internal/fingerprint"
	"gomotion/internal/observability"
	"gomotion/internal/providers"
)

// Service answers motion requests, caching computed results.
type Service struct {
	cache    *cache.ResultCache
	registry *providers.Registry

	activeProvider string
	providerConfig map[string]any

	metrics *observability.Metrics
}

// Config holds the service's provider selection.
type Config struct {
	// ActiveProvider is the provider type used for computations.
	ActiveProvider string

	// ProviderConfig is the active provider's configuration blob.
	ProviderConfig map[string]any
}

// NewService creates a motion service. metrics may be nil.
func NewService(resultCache *cache.ResultCache, registry *providers.Registry, cfg Config, metrics *observability.Metrics) *Service {
	return &Service{
		cache:          resultCache,
		registry:       registry,
		activeProvider: cfg.ActiveProvider,
		providerConfig: cfg.ProviderConfig,
		metrics:        metrics,
	}
}

// Compute returns the motion result for req, from cache when possible.
// The second return value reports whether the result was a cache hit.
func (s *Service) Compute(ctx context.Context, req *core.MotionRequest) (*core.MotionResult, bool, error) {
	key := fingerprint.Request(req)

	if result, ok := s.cache.Get(key); ok {
		s.metrics.ObserveHit()
		slog.Debug("motion served from cache", "key", key, "provider", result.Provider)
		return result, true, nil
	}
	s.metrics.ObserveMiss()

	provider, err := s.registry.Create(ctx, s.activeProvider, s.providerConfig)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	result, err := provider.ComputeMotion(ctx, req)
	s.metrics.ObserveCompute(s.activeProvider, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, false, err
	}

	s.cache.Set(key, result)
	slog.Debug("motion computed", "key", key, "provider", result.Provider, "keys", result.Keys)
	return result, false, nil
}

// Cache exposes the service's result cache for diagnostic surfaces.
func (s *Service) Cache() *cache.ResultCache {
	return s.cache
}

// Registry exposes the service's provider registry.
func (s *Service) Registry() *providers.Registry {
	return s.registry
}
