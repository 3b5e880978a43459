package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONObjectDirect(t *testing.T) {
	raw := `{"summary":"hello","key_points":[],"sentiment":"neutral","confidence_score":0.9}`

	obj, fallback := ExtractJSONObject(raw)
	if fallback {
		t.Error("valid json must not take the fallback path")
	}
	if obj["summary"] != "hello" || obj["sentiment"] != "neutral" {
		t.Errorf("unexpected parse: %v", obj)
	}
	if obj["confidence_score"] != 0.9 {
		t.Errorf("confidence lost: %v", obj["confidence_score"])
	}
}

func TestExtractJSONObjectStripsThinkBlocks(t *testing.T) {
	raw := "<think>reasoning</think>{\"summary\":\"hello\",\"key_points\":[],\"sentiment\":\"neutral\",\"confidence_score\":0.9}"

	obj, fallback := ExtractJSONObject(raw)
	if fallback {
		t.Error("think-stripped valid json must not be a fallback")
	}
	if obj["summary"] != "hello" {
		t.Errorf("unexpected summary: %v", obj["summary"])
	}
}

func TestExtractJSONObjectRoundTrip(t *testing.T) {
	original := map[string]any{
		"summary":          "a summary",
		"key_points":       []any{"one", "two"},
		"sentiment":        "positive",
		"topics":           []any{},
		"confidence_score": 0.8,
	}
	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	obj, fallback := ExtractJSONObject(string(encoded))
	if fallback {
		t.Error("marshaled object should parse directly")
	}
	reEncoded, _ := json.Marshal(obj)
	reOriginal, _ := json.Marshal(original)
	if string(reEncoded) != string(reOriginal) {
		t.Errorf("round trip mismatch: %s vs %s", reEncoded, reOriginal)
	}
}

func TestExtractJSONObjectEmbeddedObject(t *testing.T) {
	raw := "Here is the result you asked for:\n{\"summary\":\"embedded\",\"sentiment\":\"neutral\"}\nHope that helps!"

	obj, fallback := ExtractJSONObject(raw)
	if !fallback {
		t.Error("substring extraction counts as a fallback")
	}
	if obj["summary"] != "embedded" {
		t.Errorf("embedded object not found: %v", obj)
	}
}

func TestExtractJSONObjectSynthesized(t *testing.T) {
	raw := "The council approved the budget.\n- school funding up\n- tax rate level\n• roads deferred"

	obj, fallback := ExtractJSONObject(raw)
	if !fallback {
		t.Error("plain text must be a fallback")
	}
	if obj["summary"] != "The council approved the budget." {
		t.Errorf("prose should become the summary, got %v", obj["summary"])
	}
	points, ok := obj["key_points"].([]any)
	if !ok || len(points) != 3 {
		t.Fatalf("bullet lines should become key points, got %v", obj["key_points"])
	}
	if points[0] != "school funding up" {
		t.Errorf("bullet text should be trimmed, got %v", points[0])
	}
	if obj["sentiment"] != "neutral" || obj["confidence_score"] != 0.6 {
		t.Errorf("synthesized defaults wrong: %v", obj)
	}
}

func TestExtractJSONObjectEmpty(t *testing.T) {
	obj, fallback := ExtractJSONObject("   <think>only thoughts</think>  ")
	if !fallback {
		t.Error("empty input is a fallback")
	}
	if obj["summary"] != "" || obj["confidence_score"] != 0.5 {
		t.Errorf("empty input should yield the minimal structure: %v", obj)
	}
}

func TestSanitizeResponse(t *testing.T) {
	if got := SanitizeResponse("<THINK>x</THINK> result "); got != "result" {
		t.Errorf("case-insensitive think stripping failed: %q", got)
	}
	if got := SanitizeResponse("<think>a\nb\nc</think>out"); got != "out" {
		t.Errorf("multiline think stripping failed: %q", got)
	}
}
