package providers

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"gomotion/internal/core"
)

// Registration pairs a provider type with its constructor, letting provider
// packages expose themselves without package-level side effects.
type Registration struct {
	Type string
	New  Builder
}

// DefaultConfidence is used when a provider's reply omits a confidence
// value. The default lives at the computation layer, never in the cache.
const DefaultConfidence = 0.5

const systemPrompt = `You are an expert in modal editor navigation. Given a buffer excerpt and
two cursor positions, reply with the most efficient keystroke sequence that
moves the cursor from the start position to the target position.

Reply with a single JSON object and nothing else:
{"keys": "...", "explanation": "...", "confidence": 0.0-1.0, "alternatives": ["..."]}`

// BuildPrompt renders the user message for a motion request. The system
// message is the same for every provider.
func BuildPrompt(req *core.MotionRequest) (system, user string) {
	var b strings.Builder
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	mode := req.Mode
	if mode == "" {
		mode = "normal"
	}
	fmt.Fprintf(&b, "Editor mode: %s\n", mode)
	fmt.Fprintf(&b, "Cursor at line %d, column %d. Target is line %d, column %d.\n",
		req.From.Line, req.From.Col, req.To.Line, req.To.Col)
	b.WriteString("Buffer excerpt:\n```\n")
	b.WriteString(req.Excerpt)
	b.WriteString("\n```")
	return systemPrompt, b.String()
}

// ParseMotionReply extracts a MotionResult from a model's reply text.
// Providers wrap their transport differences elsewhere; the reply contract
// (a single JSON object, possibly inside a code fence) is shared.
func ParseMotionReply(providerName, reply string, now time.Time) (*core.MotionResult, error) {
	body := extractJSON(reply)
	if !gjson.Valid(body) {
		return nil, core.NewProviderError(providerName, "reply is not valid JSON", nil)
	}

	keys := gjson.Get(body, "keys")
	if !keys.Exists() || keys.String() == "" {
		return nil, core.NewProviderError(providerName, "reply is missing keystroke sequence", nil)
	}

	confidence := DefaultConfidence
	if c := gjson.Get(body, "confidence"); c.Exists() {
		confidence = c.Float()
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}
	}

	var alternatives []string
	for _, alt := range gjson.Get(body, "alternatives").Array() {
		if s := alt.String(); s != "" && s != keys.String() {
			alternatives = append(alternatives, s)
		}
	}

	return &core.MotionResult{
		Keys:         keys.String(),
		Explanation:  gjson.Get(body, "explanation").String(),
		Confidence:   confidence,
		ComputedAt:   now,
		Provider:     providerName,
		Alternatives: alternatives,
	}, nil
}

// extractJSON strips markdown code fences and surrounding prose, returning
// the first top-level JSON object in the reply.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}
