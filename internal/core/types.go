// Package core defines the shared types and interfaces for the motion daemon.
package core

import "time"

// Position identifies a cursor location in a buffer.
// Lines and columns are zero-based, matching editor protocol conventions.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// MotionRequest describes a navigation problem: move the cursor from one
// position to another inside the given buffer excerpt.
type MotionRequest struct {
	// FilePath is the path of the buffer, used for language hints and logging.
	FilePath string `json:"file_path,omitempty"`

	// Language is the buffer's language identifier (e.g. "go", "python").
	Language string `json:"language,omitempty"`

	// Excerpt holds the buffer text surrounding both cursor positions.
	// Providers send this as context; it is part of the request fingerprint.
	Excerpt string `json:"excerpt"`

	// From and To are the start and target cursor positions.
	From Position `json:"from"`
	To   Position `json:"to"`

	// Mode is the editor mode the motion starts in (e.g. "normal").
	Mode string `json:"mode,omitempty"`
}

// MotionResult is the computed answer for a MotionRequest.
type MotionResult struct {
	// Keys is the keystroke sequence (e.g. "3j2w").
	Keys string `json:"keys"`

	// Explanation is a short human-readable description of what Keys does.
	Explanation string `json:"explanation,omitempty"`

	// Confidence is the provider's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// ComputedAt is when the provider produced this result.
	ComputedAt time.Time `json:"computed_at"`

	// Provider is the name of the provider that produced this result.
	Provider string `json:"provider"`

	// Alternatives holds other valid keystroke sequences, best first.
	Alternatives []string `json:"alternatives,omitempty"`
}

// Clone returns an independent copy of the result. Cached results are
// cloned on read so callers never alias cache-owned state.
func (r *MotionResult) Clone() *MotionResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Alternatives != nil {
		out.Alternatives = make([]string, len(r.Alternatives))
		copy(out.Alternatives, r.Alternatives)
	}
	return &out
}

// ConfigField describes a single accepted configuration field of a provider.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "boolean"
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	// Enum constrains the value to one of the listed options when non-empty.
	Enum []string `json:"enum,omitempty"`
}

// ProviderMetadata holds static, instance-independent provider information.
type ProviderMetadata struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}
