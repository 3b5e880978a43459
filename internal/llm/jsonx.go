package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var thinkTagRe = regexp.MustCompile(`(?is)<think>.*?</think>`)

// SanitizeResponse strips reasoning annotations some backends interleave
// into completions and trims surrounding whitespace.
func SanitizeResponse(raw string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(raw, ""))
}

// ExtractJSONObject parses a JSON object out of model output. Returns the
// parsed map and whether a fallback path was taken. When nothing parses,
// a minimal structure is synthesized from the free text so downstream code
// keeps moving instead of erroring out.
func ExtractJSONObject(raw string) (map[string]any, bool) {
	cleaned := SanitizeResponse(raw)
	if cleaned == "" {
		return map[string]any{
			"summary":          "",
			"key_points":       []any{},
			"sentiment":        "neutral",
			"topics":           []any{},
			"confidence_score": 0.5,
		}, true
	}

	// First pass: direct decode.
	var direct map[string]any
	if err := json.Unmarshal([]byte(cleaned), &direct); err == nil {
		return direct, false
	}

	// Second pass: largest {...} substring.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		var snippet map[string]any
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &snippet); err == nil {
			return snippet, true
		}
	}

	// Fallback: synthesize from the text. Lines starting with a bullet
	// marker become key points; everything else is the summary. Legit
	// sentence fragments opening with a dash will be misread as bullets;
	// that trade-off is deliberate and covered by tests.
	var bullets []any
	var prose []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line[0] {
		case '-', '*':
			bullets = append(bullets, strings.TrimLeft(line, "-* "))
		default:
			if strings.HasPrefix(line, "•") {
				bullets = append(bullets, strings.TrimSpace(strings.TrimPrefix(line, "•")))
			} else {
				prose = append(prose, line)
			}
		}
	}
	summary := strings.TrimSpace(strings.Join(prose, " "))
	if summary == "" {
		summary = cleaned
	}
	if bullets == nil {
		bullets = []any{}
	}
	return map[string]any{
		"summary":          summary,
		"key_points":       bullets,
		"sentiment":        "neutral",
		"topics":           []any{},
		"confidence_score": 0.6,
	}, true
}
