package core

import "context"

// MotionProvider is the capability set a pluggable backend must implement
// to compute motions. Implementations own their network client and any
// internal state; they are constructed by the provider registry and must
// not be shared across registries.
type MotionProvider interface {
	// Initialize prepares the provider with its resolved configuration.
	// It is called exactly once, before any other method.
	Initialize(ctx context.Context, config map[string]any) error

	// ComputeMotion asks the backend for the most efficient keystroke
	// sequence for the given request.
	ComputeMotion(ctx context.Context, req *MotionRequest) (*MotionResult, error)

	// TestConnection probes whether the backend can currently serve
	// requests. A nil return means healthy.
	TestConnection(ctx context.Context) error

	// ConfigSchema describes the configuration fields the provider accepts.
	ConfigSchema() []ConfigField

	// Metadata returns static provider information. It must be callable
	// on an instance that has not been initialized.
	Metadata() ProviderMetadata

	// Dispose releases any resources held by the provider. The instance
	// must not be used afterwards.
	Dispose() error
}
