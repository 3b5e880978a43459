package config

import (
	"strings"
	"testing"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/news")

	s, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.MinioBucket != "news-cache" {
		t.Errorf("expected default bucket news-cache, got %s", s.MinioBucket)
	}
	if s.SummarizerBatchSize != 10 {
		t.Errorf("expected default batch size 10, got %d", s.SummarizerBatchSize)
	}
	if s.ScraperParallelism != 4 {
		t.Errorf("expected default parallelism 4, got %d", s.ScraperParallelism)
	}
	if len(s.SmartproxyPorts) != 10 {
		t.Errorf("expected 10 default proxy ports, got %d", len(s.SmartproxyPorts))
	}
}

func TestRandomProxy(t *testing.T) {
	s := &Settings{
		SmartproxyUsername: "user",
		SmartproxyPassword: "p@ss word",
		SmartproxyHost:     "proxy.example.com",
		SmartproxyPorts:    []int{10001, 10002},
	}

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p := s.RandomProxy()
		if !strings.HasPrefix(p, "http://user:") {
			t.Fatalf("malformed proxy url: %s", p)
		}
		if strings.Contains(p, " ") {
			t.Fatalf("password not escaped: %s", p)
		}
		seen[p] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both pool ports to be used, saw %d", len(seen))
	}

	empty := &Settings{}
	if empty.RandomProxy() != "" {
		t.Error("no pool configured should yield empty proxy")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected split: %v", got)
	}
	if splitList("") != nil {
		t.Error("empty input should return nil")
	}
}
