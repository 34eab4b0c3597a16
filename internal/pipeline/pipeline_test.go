package pipeline

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smukkama/carbon-footprint/internal/analysis"
	"github.com/smukkama/carbon-footprint/internal/cache"
	"github.com/smukkama/carbon-footprint/internal/emissions"
	"github.com/smukkama/carbon-footprint/internal/history"
	"github.com/smukkama/carbon-footprint/internal/protocol"
	"github.com/smukkama/carbon-footprint/internal/providers"
)

type fakeGrid struct {
	value float64
	err   error
}

func (f fakeGrid) GridIntensity(context.Context) (float64, error) { return f.value, f.err }

type fakeAir struct {
	data map[string]any
	err  error
}

func (f fakeAir) AirQuality(context.Context) (map[string]any, error) { return f.data, f.err }

type fakeNews struct {
	mu       sync.Mutex
	calls    int
	articles []providers.Article
	err      error
}

func (f *fakeNews) Articles(context.Context) ([]providers.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.articles, f.err
}

type fakePublisher struct {
	events []*protocol.EmissionsEvent
	err    error
}

func (f *fakePublisher) PublishEmissions(_ context.Context, ev *protocol.EmissionsEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type fakeRecorder struct {
	submissions int
	fallbacks   map[string]int
	outcomes    map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{fallbacks: map[string]int{}, outcomes: map[string]int{}}
}

func (f *fakeRecorder) ObserveSubmission(float64)    { f.submissions++ }
func (f *fakeRecorder) ProviderFallback(name string) { f.fallbacks[name]++ }
func (f *fakeRecorder) ObserveAnalysis(o string)     { f.outcomes[o]++ }

type failingStore struct{}

func (failingStore) Append(context.Context, history.Record) error {
	return errors.New("disk full")
}

func (failingStore) All(context.Context) ([]history.Record, error) {
	return nil, errors.New("disk unreadable")
}

func sampleRaw() emissions.RawInput {
	return emissions.RawInput{
		"car_km":      "50",
		"bus_km":      10,
		"train_km":    0,
		"electricity": 15,
		"meat_meals":  2,
		"veg_meals":   1,
		"vegan_meals": 0,
	}
}

func TestProcess_GridFallbackToStaticFactor(t *testing.T) {
	store := history.NewMemoryStore()
	rec := newFakeRecorder()
	p, err := New(Deps{
		Store:      store,
		Grid:       fakeGrid{err: errors.New("timeout")},
		AirQuality: fakeAir{err: errors.New("down")},
		Metrics:    rec,
	})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	res, err := p.Process(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if math.Abs(res.Breakdown.Energy-15*0.233) > 1e-9 {
		t.Errorf("Expected static electricity factor, got energy %v", res.Breakdown.Energy)
	}
	if math.Abs(res.Breakdown.Total-16.385) > 1e-9 {
		t.Errorf("Expected total 16.385, got %v", res.Breakdown.Total)
	}
	if res.Breakdown.AirQuality == nil || len(res.Breakdown.AirQuality) != 0 {
		t.Errorf("Expected empty air quality, got %v", res.Breakdown.AirQuality)
	}
	if store.Len() != 1 {
		t.Errorf("Expected exactly 1 record, got %d", store.Len())
	}
	if rec.fallbacks[ProviderGrid] != 1 || rec.fallbacks[ProviderAirQuality] != 1 {
		t.Errorf("Expected both fallbacks recorded, got %v", rec.fallbacks)
	}
	if rec.submissions != 1 {
		t.Errorf("Expected 1 submission, got %d", rec.submissions)
	}
}

func TestProcess_LiveGridIntensity(t *testing.T) {
	store := history.NewMemoryStore()
	p, _ := New(Deps{
		Store:      store,
		Grid:       fakeGrid{value: 0.4},
		AirQuality: fakeAir{data: map[string]any{"aqi": 12.0}},
	})

	res, err := p.Process(context.Background(), emissions.RawInput{"electricity": 10})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if math.Abs(res.Breakdown.Energy-4) > 1e-9 {
		t.Errorf("Expected energy 4, got %v", res.Breakdown.Energy)
	}
	if res.Breakdown.GridIntensity != 0.4 {
		t.Errorf("Expected grid intensity 0.4, got %v", res.Breakdown.GridIntensity)
	}
	if res.Breakdown.AirQuality["aqi"] != 12.0 {
		t.Errorf("Expected air quality passthrough, got %v", res.Breakdown.AirQuality)
	}
	if len(res.Diagnostics.Corrections) != 6 {
		t.Errorf("Expected 6 missing fields, got %d", len(res.Diagnostics.Corrections))
	}
}

func TestProcess_StoresValidatedRecord(t *testing.T) {
	store := history.NewMemoryStore()
	p, _ := New(Deps{Store: store})

	res, err := p.Process(context.Background(), emissions.RawInput{"car_km": -5, "meat_meals": "abc", "bus_km": 3})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	records, _ := store.All(context.Background())
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.ID != res.RecordID {
		t.Errorf("Expected record id %s, got %s", res.RecordID, r.ID)
	}
	if r.CarKm != 0 || r.MeatMeals != 0 || r.BusKm != 3 {
		t.Errorf("Expected validated values, got %+v", r)
	}
	if r.TotalEmissions != res.Breakdown.Total {
		t.Errorf("Expected stored total %v, got %v", res.Breakdown.Total, r.TotalEmissions)
	}
}

func TestProcess_RecordIDMatchesFileStore(t *testing.T) {
	store := history.NewCSVFileStore(filepath.Join(t.TempDir(), "history.csv"))
	p, _ := New(Deps{Store: store})

	res, err := p.Process(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		records, err := store.All(context.Background())
		if err != nil || len(records) != 1 {
			t.Fatalf("Expected 1 record, got %d, err=%v", len(records), err)
		}
		if records[0].ID != res.RecordID {
			t.Errorf("Expected stored id %s, got %s", res.RecordID, records[0].ID)
		}
	}
}

func TestNew_DefaultsUnsetAnalysisOptions(t *testing.T) {
	opts := analysis.Options{}
	opts.Cleaning.ZThreshold = 1.5
	opts.Forest.Seed = 7
	p, _ := New(Deps{Store: history.NewMemoryStore(), Analysis: opts})

	got := p.deps.Analysis
	if got.Cleaning.ZThreshold != 1.5 || got.Forest.Seed != 7 {
		t.Errorf("Expected configured threshold and seed kept, got %+v", got)
	}
	if got.MinRecords != 2 || got.MinRegressionRecords != 5 || got.Forest.Trees != 100 {
		t.Errorf("Expected defaults for unset fields, got %+v", got)
	}
}

func TestProcess_StoreFailure(t *testing.T) {
	pub := &fakePublisher{}
	p, _ := New(Deps{Store: failingStore{}, Publisher: pub})

	if _, err := p.Process(context.Background(), sampleRaw()); err == nil {
		t.Fatal("Expected store error")
	}
	if len(pub.events) != 0 {
		t.Errorf("Expected no event for unstored record, got %d", len(pub.events))
	}
	if _, ok := p.Last(); ok {
		t.Error("Expected no last result after failure")
	}
}

func TestProcess_PublishIsBestEffort(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	p, _ := New(Deps{Store: history.NewMemoryStore(), Publisher: pub})

	res, err := p.Process(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Expected publish failure to be ignored, got %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("Expected 1 publish attempt, got %d", len(pub.events))
	}
	if pub.events[0].RecordID != res.RecordID || pub.events[0].Type != protocol.EventEmissionsRecorded {
		t.Errorf("Unexpected event %+v", pub.events[0])
	}
}

func TestLast(t *testing.T) {
	p, _ := New(Deps{Store: history.NewMemoryStore()})

	if _, ok := p.Last(); ok {
		t.Error("Expected no last result initially")
	}
	first, _ := p.Process(context.Background(), sampleRaw())
	second, _ := p.Process(context.Background(), emissions.RawInput{"car_km": 1})

	last, ok := p.Last()
	if !ok || last.RecordID != second.RecordID || last.RecordID == first.RecordID {
		t.Error("Expected last result to be the second submission")
	}
}

func TestAnalyzeHistory(t *testing.T) {
	rec := newFakeRecorder()
	p, _ := New(Deps{Store: history.NewMemoryStore(), Metrics: rec})
	ctx := context.Background()

	res, err := p.AnalyzeHistory(ctx)
	if err != nil || res != nil {
		t.Fatalf("Expected nil analysis for empty history, got %v, %v", res, err)
	}

	for i := 0; i < 6; i++ {
		raw := sampleRaw()
		raw["car_km"] = 10 + i*5
		if _, err := p.Process(ctx, raw); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	res, err = p.AnalyzeHistory(ctx)
	if err != nil {
		t.Fatalf("AnalyzeHistory failed: %v", err)
	}
	if res == nil || res.Records != 6 {
		t.Fatalf("Expected analysis of 6 records, got %+v", res)
	}
	if !res.HasPrediction() {
		t.Error("Expected prediction with 6 records")
	}
	if res.Trend <= 0 {
		t.Errorf("Expected increasing trend, got %v", res.Trend)
	}
	if rec.outcomes[OutcomeInsufficient] != 1 || rec.outcomes[OutcomePrediction] != 1 {
		t.Errorf("Unexpected outcomes %v", rec.outcomes)
	}
}

func TestAnalyzeHistory_StoreErrorIsNil(t *testing.T) {
	p, _ := New(Deps{Store: failingStore{}})
	res, err := p.AnalyzeHistory(context.Background())
	if err != nil || res != nil {
		t.Errorf("Expected nil, nil for unreadable store, got %v, %v", res, err)
	}
}

func TestAnalyzeHistory_UsesOptions(t *testing.T) {
	opts := analysis.DefaultOptions()
	opts.MinRegressionRecords = 100
	p, _ := New(Deps{Store: history.NewMemoryStore(), Analysis: opts})

	for i := 0; i < 6; i++ {
		p.Process(context.Background(), sampleRaw())
	}
	res, err := p.AnalyzeHistory(context.Background())
	if err != nil || res == nil {
		t.Fatalf("Expected analysis, got %v, %v", res, err)
	}
	if res.HasPrediction() {
		t.Error("Expected no prediction below configured minimum")
	}
}

func TestNews_Cached(t *testing.T) {
	news := &fakeNews{articles: []providers.Article{{Title: "Solar"}}}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.New[[]providers.Article](cache.NewMemoryStore(), cache.WithClock(func() time.Time { return now }))
	p, _ := New(Deps{Store: history.NewMemoryStore(), News: news, NewsCache: c})

	first := p.News(context.Background())
	second := p.News(context.Background())

	if len(first) != 1 || len(second) != 1 || second[0].Title != "Solar" {
		t.Errorf("Unexpected articles %v / %v", first, second)
	}
	if news.calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", news.calls)
	}
}

func TestNews_FailureYieldsEmpty(t *testing.T) {
	rec := newFakeRecorder()
	news := &fakeNews{err: errors.New("rate limited")}
	c := cache.New[[]providers.Article](cache.NewMemoryStore())
	p, _ := New(Deps{Store: history.NewMemoryStore(), News: news, NewsCache: c, Metrics: rec})

	got := p.News(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty list, got %v", got)
	}
	p.News(context.Background())
	if news.calls != 2 {
		t.Errorf("Expected failure not cached, got %d calls", news.calls)
	}
	if rec.fallbacks[ProviderNews] != 2 {
		t.Errorf("Expected 2 news fallbacks, got %d", rec.fallbacks[ProviderNews])
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("Expected error without store")
	}
}
