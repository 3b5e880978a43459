package cache

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

var keyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}/[a-z0-9-]+_page_\d{3}_[0-9a-f]{8}\.(pdf|html)$`)

func TestObjectKeyFormat(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		publication string
		url         string
		page        int
		format      string
	}{
		{"Smyth County News", "https://example.com/download/page_1.pdf", 1, "pdf"},
		{"", "https://example.com/edition/page/12", 12, "html"},
		{"The Herald-Courier!", "https://example.com/p?page=3", 3, "pdf"},
	}

	for _, tc := range cases {
		key := ObjectKey(day, tc.publication, tc.url, tc.page, tc.format)
		if !keyPattern.MatchString(key) {
			t.Errorf("key %q does not match canonical pattern", key)
		}
		if !strings.HasPrefix(key, "2025-06-01/") {
			t.Errorf("key %q missing date prefix", key)
		}
	}
}

func TestObjectKeyDeterministic(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	k1 := ObjectKey(day, "herald", "https://example.com/a.pdf", 1, "pdf")
	k2 := ObjectKey(day, "herald", "https://example.com/a.pdf", 1, "pdf")
	if k1 != k2 {
		t.Error("same inputs must produce identical keys")
	}

	k3 := ObjectKey(day, "herald", "https://example.com/b.pdf", 1, "pdf")
	if k1 == k3 {
		t.Error("different urls must produce different keys")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Smyth County News": "smyth-county-news",
		"  The Herald!  ":   "the-herald",
		"":                  "default",
		"---":               "default",
		"A1":                "a1",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileExtension(t *testing.T) {
	if got := FileExtension("https://x.com/a/page_1.PDF", "html"); got != ".pdf" {
		t.Errorf("url extension should win, got %s", got)
	}
	if got := FileExtension("https://x.com/view?id=2", "pdf"); got != ".pdf" {
		t.Errorf("declared format should apply, got %s", got)
	}
	if got := FileExtension("https://x.com/view?id=2", "html"); got != ".html" {
		t.Errorf("default should be html, got %s", got)
	}
}

func TestResolveEndpoint(t *testing.T) {
	cases := map[string]string{
		"minio-service.news.svc.cluster.local": "http://minio-service.news.svc.cluster.local:80",
		"localhost:9000":                       "http://localhost:9000",
		"storage.lan":                          "http://storage.lan:80",
		"minio.example.com":                    "https://minio.example.com:9000",
		"http://minio.example.com":             "http://minio.example.com:80",
		"https://minio.example.com:9443":       "https://minio.example.com:9443",
	}
	for in, want := range cases {
		if got := ResolveEndpoint(in); got != want {
			t.Errorf("ResolveEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash([]byte("same bytes"))
	b := ContentHash([]byte("same bytes"))
	if a != b {
		t.Error("content hash must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("expected sha256 hex length 64, got %d", len(a))
	}
}

func TestDebugKeyShape(t *testing.T) {
	key := DebugKey("post_submit", ".png")
	if !strings.HasPrefix(key, "debug/login/post_submit/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("unexpected debug key: %s", key)
	}
}
