package store

import (
	"strings"
	"testing"

	"newsroom/internal/core"
)

func TestComposeSummaryText(t *testing.T) {
	got := ComposeSummaryText("The council met.", []string{"Budget passed", "Road repairs funded"}, "neutral")

	if !strings.HasPrefix(got, "The council met.") {
		t.Error("summary prose should lead")
	}
	if !strings.Contains(got, "Key Points:\n• Budget passed\n• Road repairs funded") {
		t.Errorf("key points block malformed:\n%s", got)
	}
	if !strings.HasSuffix(got, "Sentiment: neutral") {
		t.Error("sentiment line should close the text")
	}
}

func TestComposeSummaryTextMinimal(t *testing.T) {
	got := ComposeSummaryText("Just a summary.", nil, "")
	if got != "Just a summary." {
		t.Errorf("no key points or sentiment should add nothing, got %q", got)
	}
}

func TestMarshalOrNilEmptyValues(t *testing.T) {
	if marshalOrNil([]string(nil)) != nil {
		t.Error("nil slice should marshal to nil")
	}
	if marshalOrNil([]string{}) != nil {
		t.Error("empty slice should marshal to nil")
	}
	if marshalOrNil(map[string]any{}) != nil {
		t.Error("empty map should marshal to nil")
	}
	if marshalOrNil([]core.Event{}) != nil {
		t.Error("empty event list should marshal to nil")
	}
	if b := marshalOrNil([]string{"a"}); string(b) != `["a"]` {
		t.Errorf("non-empty slice should marshal, got %s", b)
	}
}

func TestUnmarshalHelpersTolerateGarbage(t *testing.T) {
	if unmarshalStrings([]byte("not json")) != nil {
		t.Error("bad tags json should yield nil")
	}
	if unmarshalMap([]byte("[1,2]")) != nil {
		t.Error("non-object metadata should yield nil")
	}
	if unmarshalEvents(nil) != nil {
		t.Error("empty events should yield nil")
	}
}

func TestScalarMergeHelpers(t *testing.T) {
	if firstNonEmpty("", "fallback") != "fallback" {
		t.Error("empty first should fall through")
	}
	if firstNonEmpty("keep", "fallback") != "keep" {
		t.Error("non-empty first should win")
	}

	one, two := 1, 2
	if got := coalesceInt(&one, &two); *got != 1 {
		t.Error("non-nil first int should win")
	}
	if got := coalesceInt(nil, &two); *got != 2 {
		t.Error("nil first int should fall through")
	}

	f := 3.5
	if got := coalesceFloat(nil, &f); *got != 3.5 {
		t.Error("nil first float should fall through")
	}
}

func TestPublicationOf(t *testing.T) {
	a := &core.Article{Metadata: map[string]any{"publication": "Smyth County News"}}
	if publicationOf(a) != "Smyth County News" {
		t.Error("publication should come from metadata")
	}
	if publicationOf(&core.Article{}) != "" {
		t.Error("missing metadata should yield empty publication")
	}
}
