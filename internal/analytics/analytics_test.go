package analytics

import (
	"context"
	"testing"
	"time"

	"newsroom/internal/core"
	"newsroom/internal/store"
)

func TestTrendZScoreFloor(t *testing.T) {
	// Today=10 against a flat history of 2s. Std is 0, so the floor of
	// 1.0 applies: zscore = (10-2)/1 = 8.
	history := []float64{2, 2, 2, 2, 2, 2, 2}
	score, zscore, mean, std := Trend(10, history)

	if score != 8 {
		t.Errorf("score = %f, want 8", score)
	}
	if zscore != 8 {
		t.Errorf("zscore = %f, want 8 (std floored at 1)", zscore)
	}
	if mean != 2 || std != 0 {
		t.Errorf("mean/std = %f/%f, want 2/0", mean, std)
	}
}

func TestTrendWithVariance(t *testing.T) {
	// History 1..7: mean 4, population std 2.
	history := []float64{1, 2, 3, 4, 5, 6, 7}
	score, zscore, mean, std := Trend(8, history)

	if mean != 4 {
		t.Errorf("mean = %f, want 4", mean)
	}
	if std != 2 {
		t.Errorf("population std = %f, want 2", std)
	}
	if score != 4 || zscore != 2 {
		t.Errorf("score/zscore = %f/%f, want 4/2", score, zscore)
	}
}

func TestTrendEmptyHistory(t *testing.T) {
	score, zscore, mean, std := Trend(5, nil)
	if mean != 0 || std != 0 {
		t.Errorf("empty history should give zero mean/std, got %f/%f", mean, std)
	}
	if score != 5 || zscore != 5 {
		t.Errorf("new keys trend at their full count, got score=%f z=%f", score, zscore)
	}
}

// fakeMetricStore records the calls the job makes.
type fakeMetricStore struct {
	aggregated []string
	trending   []core.TrendingItem
	forecasts  map[string][]core.ForecastPoint
	windows    []store.MetricWindow
	topKeys    []store.KeyMean
}

func (f *fakeMetricStore) AggregateDay(ctx context.Context, day time.Time) error {
	f.aggregated = append(f.aggregated, day.Format("2006-01-02"))
	return nil
}

func (f *fakeMetricStore) MetricWindows(ctx context.Context, day time.Time, window int) ([]store.MetricWindow, error) {
	return f.windows, nil
}

func (f *fakeMetricStore) UpsertTrendingItem(ctx context.Context, item core.TrendingItem) error {
	f.trending = append(f.trending, item)
	return nil
}

func (f *fakeMetricStore) TopKeysBy7DayMean(ctx context.Context, kind core.MetricKind, day time.Time, n int) ([]store.KeyMean, error) {
	return f.topKeys, nil
}

func (f *fakeMetricStore) UpsertForecast(ctx context.Context, day time.Time, kind core.MetricKind, key string, horizon int, series []core.ForecastPoint) error {
	if f.forecasts == nil {
		f.forecasts = map[string][]core.ForecastPoint{}
	}
	f.forecasts[string(kind)+"/"+key] = series
	return nil
}

func TestJobRun(t *testing.T) {
	fake := &fakeMetricStore{
		windows: []store.MetricWindow{
			{Kind: core.MetricTag, Key: "schools", Current: 10, History: []float64{2, 2, 2, 2, 2, 2, 2}},
		},
		topKeys: []store.KeyMean{{Key: "schools", Mean7: 2}},
	}

	job := NewJob(fake, Options{Window: 7, Days: 3, TopN: 5, Horizon: 7})
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.aggregated) != 3 {
		t.Errorf("expected 3 days aggregated, got %v", fake.aggregated)
	}
	// One window row per day over 3 days.
	if len(fake.trending) != 3 {
		t.Fatalf("expected 3 trending upserts, got %d", len(fake.trending))
	}
	item := fake.trending[0]
	if item.ZScore != 8 || item.Score != 8 || item.WinSize != 7 {
		t.Errorf("trending math wrong: %+v", item)
	}
	if item.Details["current"] != 10 || item.Details["mean"] != 2 {
		t.Errorf("details payload wrong: %v", item.Details)
	}

	// Forecasts for tag and topic kinds using the same top keys.
	series, ok := fake.forecasts["tag/schools"]
	if !ok {
		t.Fatal("tag forecast missing")
	}
	if len(series) != 7 {
		t.Errorf("expected 7 horizon days, got %d", len(series))
	}
	for _, p := range series {
		if p.YHat != 2 {
			t.Errorf("flat mean forecast expected, got %+v", p)
		}
	}
}
