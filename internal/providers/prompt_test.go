package providers

import (
	"strings"
	"testing"
	"time"

	"gomotion/internal/core"
)

func TestBuildPrompt(t *testing.T) {
	req := &core.MotionRequest{
		Language: "go",
		Excerpt:  "func main() {}",
		From:     core.Position{Line: 3, Col: 0},
		To:       core.Position{Line: 7, Col: 4},
	}

	system, user := BuildPrompt(req)
	if !strings.Contains(system, "JSON object") {
		t.Errorf("system prompt missing reply contract: %q", system)
	}
	for _, want := range []string{"Language: go", "line 3", "line 7", "func main() {}", "Editor mode: normal"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestParseMotionReply(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("PlainJSON", func(t *testing.T) {
		res, err := ParseMotionReply("openai",
			`{"keys":"3j2w","explanation":"down three, two words","confidence":0.9,"alternatives":["/foo\n"]}`, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Keys != "3j2w" {
			t.Errorf("keys = %q", res.Keys)
		}
		if res.Confidence != 0.9 {
			t.Errorf("confidence = %v", res.Confidence)
		}
		if res.Provider != "openai" || !res.ComputedAt.Equal(now) {
			t.Errorf("provenance not recorded: %+v", res)
		}
		if len(res.Alternatives) != 1 {
			t.Errorf("alternatives = %v", res.Alternatives)
		}
	})

	t.Run("CodeFenceStripped", func(t *testing.T) {
		reply := "Here is the motion:\n```json\n{\"keys\": \"gg\"}\n```\nLet me know if that helps."
		res, err := ParseMotionReply("anthropic", reply, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Keys != "gg" {
			t.Errorf("keys = %q", res.Keys)
		}
	})

	t.Run("MissingKeysRejected", func(t *testing.T) {
		_, err := ParseMotionReply("openai", `{"explanation":"no keys here"}`, now)
		if err == nil {
			t.Fatal("expected error for missing keys")
		}
	})

	t.Run("EmptyKeysRejected", func(t *testing.T) {
		_, err := ParseMotionReply("openai", `{"keys":""}`, now)
		if err == nil {
			t.Fatal("expected error for empty keys")
		}
	})

	t.Run("InvalidJSONRejected", func(t *testing.T) {
		_, err := ParseMotionReply("openai", "I cannot help with that.", now)
		if err == nil {
			t.Fatal("expected error for non-JSON reply")
		}
	})

	t.Run("MissingConfidenceDefaults", func(t *testing.T) {
		res, err := ParseMotionReply("openai", `{"keys":"w"}`, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Confidence != DefaultConfidence {
			t.Errorf("confidence = %v, want %v", res.Confidence, DefaultConfidence)
		}
	})

	t.Run("ConfidenceClamped", func(t *testing.T) {
		res, err := ParseMotionReply("openai", `{"keys":"w","confidence":1.7}`, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Confidence != 1 {
			t.Errorf("confidence = %v, want 1", res.Confidence)
		}

		res, err = ParseMotionReply("openai", `{"keys":"w","confidence":-0.3}`, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Confidence != 0 {
			t.Errorf("confidence = %v, want 0", res.Confidence)
		}
	})

	t.Run("AlternativesDropDuplicatesOfKeys", func(t *testing.T) {
		res, err := ParseMotionReply("openai", `{"keys":"w","alternatives":["w","e",""]}`, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Alternatives) != 1 || res.Alternatives[0] != "e" {
			t.Errorf("alternatives = %v, want [e]", res.Alternatives)
		}
	})
}
