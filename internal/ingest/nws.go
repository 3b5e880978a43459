package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

const nwsBaseURL = "https://api.weather.gov/alerts/active"

// defaultZones covers the local forecast zones when none are configured.
var defaultZones = []string{"VAZ022", "VAZ023", "VAZ024"}

// NWSConfig selects which active alerts to pull.
type NWSConfig struct {
	Zones        []string
	Area         string
	Point        string
	BBox         string
	Statuses     []string
	MessageTypes []string
	UserAgent    string
	MaxRetries   int
}

// NWSIngester pulls active National Weather Service alerts into the
// article store as OSINT records.
type NWSIngester struct {
	cfg     NWSConfig
	sink    articleSink
	http    *http.Client
	log     zerolog.Logger
	sleepFn func(time.Duration)
}

// NewNWSIngester builds an ingester with zone defaults applied.
func NewNWSIngester(cfg NWSConfig, sink articleSink) *NWSIngester {
	if len(cfg.Zones) == 0 && cfg.Area == "" && cfg.Point == "" && cfg.BBox == "" {
		cfg.Zones = defaultZones
	}
	if len(cfg.Statuses) == 0 {
		cfg.Statuses = []string{"actual"}
	}
	if len(cfg.MessageTypes) == 0 {
		cfg.MessageTypes = []string{"alert", "update"}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsroom-osint/0.1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &NWSIngester{
		cfg:     cfg,
		sink:    sink,
		http:    &http.Client{Timeout: 20 * time.Second},
		log:     logger.With("nws"),
		sleepFn: time.Sleep,
	}
}

// alertFeature is the GeoJSON feature subset the ingester maps.
type alertFeature struct {
	ID         string `json:"id"`
	Properties struct {
		ID            string   `json:"@id"`
		Event         string   `json:"event"`
		Headline      string   `json:"headline"`
		AreaDesc      string   `json:"areaDesc"`
		Severity      string   `json:"severity"`
		Urgency       string   `json:"urgency"`
		Certainty     string   `json:"certainty"`
		Onset         string   `json:"onset"`
		Effective     string   `json:"effective"`
		Sent          string   `json:"sent"`
		Expires       string   `json:"expires"`
		Ends          string   `json:"ends"`
		Description   string   `json:"description"`
		Instruction   string   `json:"instruction"`
		AffectedZones []string `json:"affectedZones"`
	} `json:"properties"`
}

// paramSets builds one query per zone, or a single area/point/bbox query.
func (n *NWSIngester) paramSets() []url.Values {
	base := url.Values{}
	base.Set("status", strings.Join(n.cfg.Statuses, ","))
	base.Set("message_type", strings.Join(n.cfg.MessageTypes, ","))

	if len(n.cfg.Zones) > 0 {
		sets := make([]url.Values, 0, len(n.cfg.Zones))
		for _, zone := range n.cfg.Zones {
			v := url.Values{}
			v.Set("status", base.Get("status"))
			v.Set("message_type", base.Get("message_type"))
			v.Set("zone", zone)
			sets = append(sets, v)
		}
		return sets
	}

	if n.cfg.Area != "" {
		base.Set("area", n.cfg.Area)
	}
	if n.cfg.Point != "" {
		base.Set("point", n.cfg.Point)
	}
	if n.cfg.BBox != "" {
		base.Set("bbox", n.cfg.BBox)
	}
	return []url.Values{base}
}

// fetchAlerts retrieves and de-duplicates active alerts across all query
// sets, retrying each query on transient failures.
func (n *NWSIngester) fetchAlerts(ctx context.Context) ([]alertFeature, error) {
	var alerts []alertFeature
	seen := map[string]bool{}

	for _, params := range n.paramSets() {
		features, err := n.fetchOne(ctx, params)
		if err != nil {
			n.log.Warn().Err(err).Str("params", params.Encode()).Msg("nws fetch failed")
			continue
		}
		for _, feat := range features {
			id := feat.ID
			if id == "" {
				id = feat.Properties.ID
			}
			if id != "" && seen[id] {
				continue
			}
			if id != "" {
				seen[id] = true
			}
			alerts = append(alerts, feat)
		}
	}
	return alerts, nil
}

func (n *NWSIngester) fetchOne(ctx context.Context, params url.Values) ([]alertFeature, error) {
	var lastErr error
	for attempt := 0; attempt < n.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			n.sleepFn(time.Duration(attempt) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, nwsBaseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", n.cfg.UserAgent)
		req.Header.Set("Accept", "application/geo+json")

		resp, err := n.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("ingest: nws returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("ingest: nws returned status %d", resp.StatusCode)
		}

		var payload struct {
			Features []alertFeature `json:"features"`
		}
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("ingest: nws decode failed: %w", err)
		}
		return payload.Features, nil
	}
	return nil, lastErr
}

// Run ingests active alerts as OSINT articles.
func (n *NWSIngester) Run(ctx context.Context) (int, error) {
	alerts, err := n.fetchAlerts(ctx)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		n.log.Info().Msg("no active NWS alerts")
		return 0, nil
	}

	articles := make([]core.Article, 0, len(alerts))
	for _, feat := range alerts {
		articles = append(articles, AlertToArticle(feat))
	}

	res, err := n.sink.StoreArticles(ctx, articles, "nws:active", string(core.SourceOSINT))
	if err != nil {
		return 0, err
	}
	n.log.Info().Int("new", res.New).Int("duplicates", res.Duplicates).Msg("stored NWS alerts")
	return res.New, nil
}

// AlertToArticle renders one alert feature into the canonical article
// shape: headline title, a structured body, and severity metadata.
func AlertToArticle(feat alertFeature) core.Article {
	props := feat.Properties

	title := props.Headline
	if title == "" {
		title = props.Event
	}
	if title == "" {
		title = "NWS Alert"
	}

	alertURL := props.ID
	if alertURL == "" {
		alertURL = feat.ID
	}

	issued := props.Onset
	if issued == "" {
		issued = props.Effective
	}
	if issued == "" {
		issued = props.Sent
	}
	expires := props.Expires
	if expires == "" {
		expires = props.Ends
	}

	published := time.Now().UTC()
	if issued != "" {
		if t, err := time.Parse(time.RFC3339, issued); err == nil {
			published = t.UTC()
		}
	}

	var lines []string
	if props.Event != "" {
		lines = append(lines, "Event: "+props.Event)
	}
	if props.AreaDesc != "" {
		lines = append(lines, "Area: "+props.AreaDesc)
	}
	var impact []string
	if props.Severity != "" {
		impact = append(impact, "Severity: "+props.Severity)
	}
	if props.Urgency != "" {
		impact = append(impact, "Urgency: "+props.Urgency)
	}
	if props.Certainty != "" {
		impact = append(impact, "Certainty: "+props.Certainty)
	}
	if len(impact) > 0 {
		lines = append(lines, strings.Join(impact, "; "))
	}
	if issued != "" {
		lines = append(lines, "Issued: "+issued)
	}
	if expires != "" {
		lines = append(lines, "Expires: "+expires)
	}
	if desc := strings.TrimSpace(props.Description); desc != "" {
		lines = append(lines, "", desc)
	}
	if instr := strings.TrimSpace(props.Instruction); instr != "" {
		lines = append(lines, "", "Instructions: "+instr)
	}
	body := strings.TrimSpace(strings.Join(lines, "\n"))

	sum := md5.Sum([]byte(title + body + alertURL))

	return core.Article{
		Title:         title,
		Content:       body,
		ContentHash:   hex.EncodeToString(sum[:]),
		URL:           alertURL,
		SourceType:    core.SourceOSINT,
		SourceURL:     alertURL,
		Section:       "NWS Alerts",
		Author:        "NWS",
		WordCount:     len(strings.Fields(body)),
		DatePublished: &published,
		DateExtracted: time.Now().UTC(),
		Status:        core.StatusExtracted,
		Metadata: map[string]any{
			"severity":  props.Severity,
			"urgency":   props.Urgency,
			"certainty": props.Certainty,
			"zones":     props.AffectedZones,
			"event":     props.Event,
		},
	}
}
