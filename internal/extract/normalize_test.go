package extract

import "testing"

func TestNormalizeSection(t *testing.T) {
	cases := map[string]string{
		"":                  "General",
		"   ":               "General",
		"obits":             "Obituaries",
		"OBITUARY":          "Obituaries",
		"sports":            "Sports",
		"editorial":         "Opinion",
		"police and courts": "Public Safety",
		"community  events": "Community Events",
		"A1":                "A1",
		"12":                "12",
	}
	for in, want := range cases {
		if got := NormalizeSection(in); got != want {
			t.Errorf("NormalizeSection(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeSectionIdempotent(t *testing.T) {
	inputs := []string{"", "obits", "sports", "Community Events", "A1", "Custom Section Name"}
	for _, in := range inputs {
		once := NormalizeSection(in)
		twice := NormalizeSection(once)
		if once != twice {
			t.Errorf("NormalizeSection not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
