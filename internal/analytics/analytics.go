// Package analytics rolls article taxonomy up into daily metrics, computes
// z-score trending against a trailing window, and writes baseline
// forecasts.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/logger"
	"newsroom/internal/store"
)

// metricStore is the slice of the article store the job drives.
type metricStore interface {
	AggregateDay(ctx context.Context, day time.Time) error
	MetricWindows(ctx context.Context, day time.Time, window int) ([]store.MetricWindow, error)
	UpsertTrendingItem(ctx context.Context, item core.TrendingItem) error
	TopKeysBy7DayMean(ctx context.Context, kind core.MetricKind, day time.Time, n int) ([]store.KeyMean, error)
	UpsertForecast(ctx context.Context, day time.Time, kind core.MetricKind, key string, horizon int, series []core.ForecastPoint) error
}

// Options tune the analytics job.
type Options struct {
	Window  int // Trailing window size in days for trending (default 7)
	Days    int // How many recent days to aggregate (default 3)
	TopN    int // Keys to forecast per kind (default 5)
	Horizon int // Forecast horizon in days (default 7)
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 7
	}
	if o.Days <= 0 {
		o.Days = 3
	}
	if o.TopN <= 0 {
		o.TopN = 5
	}
	if o.Horizon <= 0 {
		o.Horizon = 7
	}
	return o
}

// Job runs the daily aggregation, trending, and forecast passes.
type Job struct {
	store metricStore
	opts  Options
	log   zerolog.Logger
}

// NewJob builds an analytics job.
func NewJob(metricStore metricStore, opts Options) *Job {
	return &Job{store: metricStore, opts: opts.withDefaults(), log: logger.With("analytics")}
}

// Run aggregates and computes trending for each of the last Days days,
// then writes forecasts for tags and topics.
func (j *Job) Run(ctx context.Context) error {
	today := truncateToDay(time.Now().UTC())
	start := today.AddDate(0, 0, -(j.opts.Days - 1))

	for i := 0; i < j.opts.Days; i++ {
		day := start.AddDate(0, 0, i)
		j.log.Info().Str("day", day.Format("2006-01-02")).Msg("aggregating metrics")

		if err := j.store.AggregateDay(ctx, day); err != nil {
			return fmt.Errorf("analytics: aggregation for %s failed: %w", day.Format("2006-01-02"), err)
		}
		if err := j.computeTrending(ctx, day); err != nil {
			return err
		}
	}

	for _, kind := range []core.MetricKind{core.MetricTag, core.MetricTopic} {
		if err := j.computeForecasts(ctx, today, kind); err != nil {
			return err
		}
	}
	return nil
}

// computeTrending scores every (kind, key) seen on the day against its
// trailing window and upserts the trending rows.
func (j *Job) computeTrending(ctx context.Context, day time.Time) error {
	windows, err := j.store.MetricWindows(ctx, day, j.opts.Window)
	if err != nil {
		return fmt.Errorf("analytics: window fetch for %s failed: %w", day.Format("2006-01-02"), err)
	}

	for _, w := range windows {
		score, zscore, mean, std := Trend(w.Current, w.History)
		item := core.TrendingItem{
			MetricDate: day,
			Kind:       w.Kind,
			Key:        w.Key,
			Score:      score,
			ZScore:     zscore,
			Delta:      score,
			WinSize:    j.opts.Window,
			Details:    map[string]float64{"current": w.Current, "mean": mean, "std": std},
		}
		if err := j.store.UpsertTrendingItem(ctx, item); err != nil {
			return fmt.Errorf("analytics: trending upsert failed for %s/%s: %w", w.Kind, w.Key, err)
		}
	}
	return nil
}

// computeForecasts writes a flat mean-based forecast for the top keys of
// one kind.
func (j *Job) computeForecasts(ctx context.Context, day time.Time, kind core.MetricKind) error {
	top, err := j.store.TopKeysBy7DayMean(ctx, kind, day, j.opts.TopN)
	if err != nil {
		return fmt.Errorf("analytics: top keys fetch failed for %s: %w", kind, err)
	}

	for _, km := range top {
		series := make([]core.ForecastPoint, 0, j.opts.Horizon)
		for i := 1; i <= j.opts.Horizon; i++ {
			series = append(series, core.ForecastPoint{
				Date: day.AddDate(0, 0, i).Format("2006-01-02"),
				YHat: km.Mean7,
			})
		}
		if err := j.store.UpsertForecast(ctx, day, kind, km.Key, j.opts.Horizon, series); err != nil {
			return fmt.Errorf("analytics: forecast upsert failed for %s/%s: %w", kind, km.Key, err)
		}
	}
	return nil
}

// Trend computes the trend score for a current count against its trailing
// window: score = current - mean, zscore = (current - mean) / max(std, 1)
// with population standard deviation. An empty history behaves as mean 0,
// std floored to 1.
func Trend(current float64, history []float64) (score, zscore, mean, std float64) {
	if len(history) > 0 {
		var sum float64
		for _, v := range history {
			sum += v
		}
		mean = sum / float64(len(history))

		var variance float64
		for _, v := range history {
			variance += (v - mean) * (v - mean)
		}
		std = math.Sqrt(variance / float64(len(history)))
	}

	score = current - mean
	denom := std
	if denom < 1.0 {
		denom = 1.0
	}
	zscore = score / denom
	return score, zscore, mean, std
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
