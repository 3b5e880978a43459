// Package config loads process configuration from the environment.
//
// All values are read once at process start. A .env file in the working
// directory is honored for local development; real deployments set the
// variables directly.
package config

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings holds every runtime knob the pipeline reads.
type Settings struct {
	// Database
	DatabaseURL string

	// Object cache (MinIO / S3-compatible)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string

	// Paywalled e-edition credentials
	EeditionUser string
	EeditionPass string

	// Rotating egress proxy pool
	SmartproxyUsername string
	SmartproxyPassword string
	SmartproxyHost     string
	SmartproxyPorts    []int

	// LLM / embeddings (OpenAI-compatible)
	OpenAIAPIKey     string
	OpenAIAPIBase    string
	OpenAIModel      string
	OpenAIFallbacks  []string
	OpenAIMaxTokens  int
	OpenAIEmbedModel string

	// Summarizer batch loop
	SummarizerBatchSize  int
	SummarizerMaxBatches int
	SummarizerMaxRetries int

	// Vector index backends
	WeaviateURL    string
	WeaviateAPIKey string
	QdrantURL      string
	QdrantAPIKey   string

	// Notifications (consumed by the out-of-process notifier)
	NtfyURL   string
	NtfyTopic string
	NtfyToken string

	// Reddit ingestion
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	RedditUsername     string
	RedditPassword     string
	RedditSubreddits   []string

	// Facebook Graph ingestion
	FacebookGraphVersion    string
	FacebookUserAccessToken string
	FacebookPageIDs         []string

	// NWS ingestion
	NWSZones     []string
	NWSUserAgent string

	// Scraper behavior
	ScraperParallelism int
	SessionStoragePath string

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads the environment (and optional .env file) into Settings.
// Missing DATABASE_URL is a fatal configuration error.
func Load() (*Settings, error) {
	// Best-effort: absence of a .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("MINIO_BUCKET", "news-cache")
	v.SetDefault("SMARTPROXY_HOST", "us.smartproxy.com")
	v.SetDefault("SMARTPROXY_PORTS", "10001,10002,10003,10004,10005,10006,10007,10008,10009,10010")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_MAX_TOKENS", 1000)
	v.SetDefault("OPENAI_EMBED_MODEL", "text-embedding-3-small")
	v.SetDefault("SUMMARIZER_BATCH_SIZE", 10)
	v.SetDefault("SUMMARIZER_MAX_BATCHES", 10)
	v.SetDefault("SUMMARIZER_MAX_RETRIES", 3)
	v.SetDefault("NTFY_TOPIC", "news-digest")
	v.SetDefault("REDDIT_USER_AGENT", "newsroom/0.1 (by u/localnewsbot)")
	v.SetDefault("FACEBOOK_GRAPH_VERSION", "v19.0")
	v.SetDefault("NWS_USER_AGENT", "newsroom-osint/0.1")
	v.SetDefault("SCRAPER_PARALLELISM", 4)
	v.SetDefault("SESSION_STORAGE_PATH", "storage_state.json")
	v.SetDefault("LOG_LEVEL", "info")

	s := &Settings{
		DatabaseURL:    v.GetString("DATABASE_URL"),
		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),

		EeditionUser: v.GetString("EEDITION_USER"),
		EeditionPass: v.GetString("EEDITION_PASS"),

		SmartproxyUsername: v.GetString("SMARTPROXY_USERNAME"),
		SmartproxyPassword: v.GetString("SMARTPROXY_PASSWORD"),
		SmartproxyHost:     v.GetString("SMARTPROXY_HOST"),
		SmartproxyPorts:    parsePorts(v.GetString("SMARTPROXY_PORTS")),

		OpenAIAPIKey:     v.GetString("OPENAI_API_KEY"),
		OpenAIAPIBase:    v.GetString("OPENAI_API_BASE"),
		OpenAIModel:      v.GetString("OPENAI_MODEL"),
		OpenAIFallbacks:  splitList(v.GetString("OPENAI_FALLBACK_MODELS")),
		OpenAIMaxTokens:  v.GetInt("OPENAI_MAX_TOKENS"),
		OpenAIEmbedModel: v.GetString("OPENAI_EMBED_MODEL"),

		SummarizerBatchSize:  v.GetInt("SUMMARIZER_BATCH_SIZE"),
		SummarizerMaxBatches: v.GetInt("SUMMARIZER_MAX_BATCHES"),
		SummarizerMaxRetries: v.GetInt("SUMMARIZER_MAX_RETRIES"),

		WeaviateURL:    v.GetString("WEAVIATE_URL"),
		WeaviateAPIKey: v.GetString("WEAVIATE_API_KEY"),
		QdrantURL:      v.GetString("QDRANT_URL"),
		QdrantAPIKey:   v.GetString("QDRANT_API_KEY"),

		NtfyURL:   v.GetString("NTFY_URL"),
		NtfyTopic: v.GetString("NTFY_TOPIC"),
		NtfyToken: v.GetString("NTFY_TOKEN"),

		RedditClientID:     v.GetString("REDDIT_CLIENT_ID"),
		RedditClientSecret: v.GetString("REDDIT_CLIENT_SECRET"),
		RedditUserAgent:    v.GetString("REDDIT_USER_AGENT"),
		RedditUsername:     v.GetString("REDDIT_USERNAME"),
		RedditPassword:     v.GetString("REDDIT_PASSWORD"),
		RedditSubreddits:   splitList(v.GetString("REDDIT_SUBREDDITS")),

		FacebookGraphVersion:    v.GetString("FACEBOOK_GRAPH_VERSION"),
		FacebookUserAccessToken: v.GetString("FACEBOOK_USER_ACCESS_TOKEN"),
		FacebookPageIDs:         splitList(v.GetString("FACEBOOK_PAGE_IDS")),

		NWSZones:     splitList(v.GetString("NWS_ZONES")),
		NWSUserAgent: v.GetString("NWS_USER_AGENT"),

		ScraperParallelism: v.GetInt("SCRAPER_PARALLELISM"),
		SessionStoragePath: v.GetString("SESSION_STORAGE_PATH"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogPretty: v.GetBool("LOG_PRETTY"),
	}

	if s.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return s, nil
}

// HasProxy reports whether an egress proxy pool is configured.
func (s *Settings) HasProxy() bool {
	return s.SmartproxyUsername != "" && s.SmartproxyHost != "" && len(s.SmartproxyPorts) > 0
}

// RandomProxy returns one proxy URL chosen uniformly from the port pool,
// or the empty string when no pool is configured.
func (s *Settings) RandomProxy() string {
	if !s.HasProxy() {
		return ""
	}
	port := s.SmartproxyPorts[rand.Intn(len(s.SmartproxyPorts))]
	return fmt.Sprintf("http://%s:%s@%s:%d",
		s.SmartproxyUsername,
		url.QueryEscape(s.SmartproxyPassword),
		s.SmartproxyHost,
		port,
	)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parsePorts(raw string) []int {
	var ports []int
	for _, p := range splitList(raw) {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err == nil && n > 0 {
			ports = append(ports, n)
		}
	}
	return ports
}
