// Package providers manages pluggable motion provider types and reuses
// validated provider instances keyed by configuration fingerprint.
package providers

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gomotion/internal/core"
	"gomotion/internal/fingerprint"
)

// Builder constructs an uninitialized provider instance.
// Provider packages supply one per type.
type Builder func() core.MotionProvider

// instanceRecord is a live, health-checked provider instance.
type instanceRecord struct {
	instance     core.MotionProvider
	providerType string
	createdAt    time.Time
}

// Info holds the static metadata of a provider type.
type Info struct {
	Metadata     core.ProviderMetadata `json:"metadata"`
	ConfigSchema []core.ConfigField    `json:"config_schema"`
}

// Stats is a snapshot of the registry's live instances.
type Stats struct {
	TotalInstances  int            `json:"total_instances"`
	PerType         map[string]int `json:"per_type"`
	OldestCreatedAt time.Time      `json:"oldest_created_at,omitzero"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry maps provider types to constructors and reuses live instances
// per (type, config-fingerprint) key. At most one live instance exists per
// key at any time; a returned instance has passed its health check at least
// once. The registry is an explicit value owned by the application, not
// package-level state.
type Registry struct {
	mu        sync.Mutex
	builders  map[string]Builder
	instances map[string]*instanceRecord
	now       func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		builders:  make(map[string]Builder),
		instances: make(map[string]*instanceRecord),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a constructor for the given provider type, replacing any
// previous one.
func (r *Registry) Register(providerType string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[providerType] = builder
}

// Unregister removes a provider type and disposes every live instance
// currently keyed under it.
func (r *Registry) Unregister(providerType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.builders, providerType)
	for key, rec := range r.instances {
		if rec.providerType != providerType {
			continue
		}
		if err := rec.instance.Dispose(); err != nil {
			slog.Warn("failed to dispose provider instance",
				"type", providerType, "error", err)
		}
		delete(r.instances, key)
	}
}

// RegisteredTypes returns the instantiable provider types, sorted.
func (r *Registry) RegisteredTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create returns a live provider instance for the given type and
// configuration. Semantically equal configurations (key order irrelevant)
// resolve to the same instance. An existing instance is health-checked
// before reuse: on failure it is disposed and a fresh instance is built.
// New instances must pass initialization and a health check before being
// recorded; a timeout or network failure counts as a health-check failure.
func (r *Registry) Create(ctx context.Context, providerType string, config map[string]any) (core.MotionProvider, error) {
	key := fingerprint.Config(providerType, config)

	// The whole construct-and-check sequence is serialized so a race can
	// never produce two live instances under one key.
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.instances[key]; ok {
		err := rec.instance.TestConnection(ctx)
		if err == nil {
			slog.Debug("reusing provider instance", "type", providerType, "instance_key", key)
			return rec.instance, nil
		}
		slog.Warn("provider instance failed health check, rebuilding",
			"type", providerType, "error", err)
		if derr := rec.instance.Dispose(); derr != nil {
			slog.Warn("failed to dispose stale provider instance",
				"type", providerType, "error", derr)
		}
		delete(r.instances, key)
	}

	builder, ok := r.builders[providerType]
	if !ok {
		return nil, core.NewProviderError(providerType, "unknown provider type", core.ErrUnknownProviderType)
	}

	instance := builder()
	if err := instance.Initialize(ctx, config); err != nil {
		_ = instance.Dispose()
		return nil, core.NewProviderError(providerType, "failed to initialize provider", err)
	}
	if err := instance.TestConnection(ctx); err != nil {
		_ = instance.Dispose()
		return nil, core.NewProviderError(providerType, "provider failed connection test", err)
	}

	r.instances[key] = &instanceRecord{
		instance:     instance,
		providerType: providerType,
		createdAt:    r.now(),
	}
	slog.Info("provider instance created", "type", providerType, "instance_key", key)
	return instance, nil
}

// Info constructs a throwaway instance of the given type purely to read its
// static metadata and config schema, then disposes it. The throwaway is
// never recorded in the instance map.
func (r *Registry) Info(providerType string) (*Info, error) {
	r.mu.Lock()
	builder, ok := r.builders[providerType]
	r.mu.Unlock()
	if !ok {
		return nil, core.NewProviderError(providerType, "unknown provider type", core.ErrUnknownProviderType)
	}

	instance := builder()
	defer func() {
		if err := instance.Dispose(); err != nil {
			slog.Warn("failed to dispose throwaway provider instance",
				"type", providerType, "error", err)
		}
	}()

	return &Info{
		Metadata:     instance.Metadata(),
		ConfigSchema: instance.ConfigSchema(),
	}, nil
}

// Stats returns a snapshot of live instance counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		TotalInstances: len(r.instances),
		PerType:        make(map[string]int),
	}
	for _, rec := range r.instances {
		s.PerType[rec.providerType]++
		if s.OldestCreatedAt.IsZero() || rec.createdAt.Before(s.OldestCreatedAt) {
			s.OldestCreatedAt = rec.createdAt
		}
	}
	return s
}

// ReclaimStale disposes and removes every instance older than maxAge.
// Returns the number reclaimed.
func (r *Registry) ReclaimStale(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var reclaimed int
	for key, rec := range r.instances {
		if now.Sub(rec.createdAt) <= maxAge {
			continue
		}
		if err := rec.instance.Dispose(); err != nil {
			slog.Warn("failed to dispose stale provider instance",
				"type", rec.providerType, "error", err)
		}
		delete(r.instances, key)
		reclaimed++
	}
	if reclaimed > 0 {
		slog.Info("reclaimed stale provider instances", "count", reclaimed, "max_age", maxAge)
	}
	return reclaimed
}

// DisposeAll disposes every live instance and empties the registry's
// instance map. Individual disposal errors are logged and swallowed so one
// failing instance never blocks cleanup of the rest.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, rec := range r.instances {
		if err := rec.instance.Dispose(); err != nil {
			slog.Warn("failed to dispose provider instance",
				"type", rec.providerType, "error", err)
		}
		delete(r.instances, key)
	}
}
