// Package fingerprint derives deterministic string keys from motion
// requests and provider configurations. Request keys address the result
// cache; config keys identify reusable provider instances.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"gomotion/internal/core"
)

// Request returns the cache key for a motion request.
// Identical requests always produce identical keys.
// Format: motion:<language>:<hash> where hash is xxhash64 over a fixed-order
// serialization of the request fields.
func Request(req *core.MotionRequest) string {
	h := xxhash.New()
	// Field order is fixed; a struct literal round-trip through json.Marshal
	// preserves declaration order, so hashing the encoded form is stable.
	enc, _ := json.Marshal(req)
	_, _ = h.Write(enc)

	lang := req.Language
	if lang == "" {
		lang = "text"
	}
	return fmt.Sprintf("motion:%s:%016x", lang, h.Sum64())
}

// Config returns the instance key for a provider type and its configuration.
// The key is order-independent over config map keys: two semantically equal
// configs produce the same key regardless of insertion order.
// Format: <type>:<hex> where hex is the first 16 bytes of
// SHA-256(canonical JSON(config)).
func Config(providerType string, config map[string]any) string {
	canonical, err := canonicalize(config)
	if err != nil {
		// Unencodable values (channels, funcs) never appear in real provider
		// configs; fall back to a type-only key rather than failing lookup.
		return providerType + ":invalid"
	}
	sum := sha256.Sum256(canonical)
	return providerType + ":" + hex.EncodeToString(sum[:16])
}

// canonicalize produces a deterministic JSON representation of v.
// Map keys are sorted; nested maps and slices are handled recursively.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte("{")
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, kb...)
		out = append(out, ':')
		vb, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, vb...)
	}
	return append(out, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	out := []byte("[")
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		vb, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		out = append(out, vb...)
	}
	return append(out, ']'), nil
}
