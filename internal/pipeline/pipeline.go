// Package pipeline wires validation, calculation, history, analysis and
// the external data providers into the operations the API and CLI call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/carbon-footprint/internal/analysis"
	"github.com/smukkama/carbon-footprint/internal/cache"
	"github.com/smukkama/carbon-footprint/internal/emissions"
	"github.com/smukkama/carbon-footprint/internal/history"
	"github.com/smukkama/carbon-footprint/internal/insights"
	"github.com/smukkama/carbon-footprint/internal/protocol"
	"github.com/smukkama/carbon-footprint/internal/providers"
)

// Analysis outcomes reported to the Recorder
const (
	OutcomeInsufficient = "insufficient"
	OutcomeTrend        = "trend"
	OutcomePrediction   = "prediction"
	OutcomeError        = "error"
)

// Provider names reported on fallback
const (
	ProviderGrid       = "grid_intensity"
	ProviderAirQuality = "air_quality"
	ProviderNews       = "news"
)

// Recorder receives pipeline metrics
type Recorder interface {
	ObserveSubmission(total float64)
	ProviderFallback(provider string)
	ObserveAnalysis(outcome string)
}

// Publisher announces recorded submissions
type Publisher interface {
	PublishEmissions(ctx context.Context, ev *protocol.EmissionsEvent) error
}

// Deps are the collaborators of a Pipeline. Store is required; every
// other field is optional.
type Deps struct {
	Store      history.Store
	Factors    emissions.Factors
	Grid       providers.GridIntensitySource
	AirQuality providers.AirQualitySource
	News       providers.NewsSource
	NewsCache  *cache.Cache[[]providers.Article]
	Insights   *insights.Engine
	Publisher  Publisher
	Metrics    Recorder
	Analysis   analysis.Options
	Logger     *slog.Logger
	Now        func() time.Time
}

// Result is the outcome of processing one submission
type Result struct {
	RecordID    uuid.UUID                `json:"record_id"`
	Input       emissions.ValidatedInput `json:"input"`
	Breakdown   emissions.Breakdown      `json:"breakdown"`
	Diagnostics emissions.Diagnostics    `json:"diagnostics"`
}

// Pipeline processes submissions and answers analysis queries
type Pipeline struct {
	deps Deps

	mu   sync.Mutex
	last *Result
}

// New creates a pipeline
func New(deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Factors == nil {
		deps.Factors = emissions.DefaultFactors()
	}
	if deps.Insights == nil {
		deps.Insights = insights.NewEngine(nil, deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	deps.Analysis = deps.Analysis.WithDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}, nil
}

// Process validates raw, computes its emissions and appends exactly one
// history record. Provider failures fall back to static values; only a
// store failure is returned.
func (p *Pipeline) Process(ctx context.Context, raw emissions.RawInput) (*Result, error) {
	input, diag := emissions.Validate(raw)
	if !diag.Clean() {
		p.deps.Logger.Info("input defaulted", "fields", diag.Defaulted())
	}

	breakdown := emissions.Calculate(input, p.deps.Factors, p.gridIntensity(ctx))
	breakdown.AirQuality = p.airQuality(ctx)

	rec := history.NewRecord(input, breakdown.Total, p.deps.Now().UTC())
	if err := p.deps.Store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}
	p.deps.Metrics.ObserveSubmission(breakdown.Total)

	result := &Result{
		RecordID:    rec.ID,
		Input:       input,
		Breakdown:   breakdown,
		Diagnostics: diag,
	}

	p.mu.Lock()
	p.last = result
	p.mu.Unlock()

	p.publish(ctx, rec, breakdown)
	return result, nil
}

func (p *Pipeline) gridIntensity(ctx context.Context) float64 {
	static := p.deps.Factors.Lookup(emissions.CategoryElectricity)
	if p.deps.Grid == nil {
		return static
	}

	intensity, err := p.deps.Grid.GridIntensity(ctx)
	if err != nil {
		p.deps.Logger.Warn("grid intensity unavailable, using static factor", "error", err, "factor", static)
		p.deps.Metrics.ProviderFallback(ProviderGrid)
		return static
	}
	return intensity
}

func (p *Pipeline) airQuality(ctx context.Context) map[string]any {
	if p.deps.AirQuality == nil {
		return map[string]any{}
	}

	aq, err := p.deps.AirQuality.AirQuality(ctx)
	if err != nil {
		p.deps.Logger.Warn("air quality unavailable", "error", err)
		p.deps.Metrics.ProviderFallback(ProviderAirQuality)
		return map[string]any{}
	}
	if aq == nil {
		aq = map[string]any{}
	}
	return aq
}

func (p *Pipeline) publish(ctx context.Context, rec history.Record, b emissions.Breakdown) {
	if p.deps.Publisher == nil {
		return
	}

	ev := &protocol.EmissionsEvent{
		Type:       protocol.EventEmissionsRecorded,
		RecordID:   rec.ID,
		RecordedAt: rec.Timestamp,
		Inputs: protocol.Inputs{
			CarKm:          rec.CarKm,
			BusKm:          rec.BusKm,
			TrainKm:        rec.TrainKm,
			ElectricityKWh: rec.ElectricityKWh,
			MeatMeals:      rec.MeatMeals,
			VegMeals:       rec.VegMeals,
			VeganMeals:     rec.VeganMeals,
		},
		Transport:     b.Transport,
		Energy:        b.Energy,
		Diet:          b.Diet,
		Total:         b.Total,
		GridIntensity: b.GridIntensity,
	}
	if err := p.deps.Publisher.PublishEmissions(ctx, ev); err != nil {
		p.deps.Logger.Warn("failed to publish emissions event", "record_id", rec.ID, "error", err)
	}
}

// AnalyzeHistory reads the full history and analyzes it. It returns nil
// when there is too little history or the store cannot be read.
func (p *Pipeline) AnalyzeHistory(ctx context.Context) (*analysis.Result, error) {
	records, err := p.deps.Store.All(ctx)
	if err != nil {
		p.deps.Logger.Error("failed to read history", "error", err)
		p.deps.Metrics.ObserveAnalysis(OutcomeError)
		return nil, nil
	}

	res, err := analysis.Analyze(history.NewTable(records), p.deps.Analysis)
	switch {
	case err != nil:
		p.deps.Metrics.ObserveAnalysis(OutcomeError)
		return nil, err
	case res == nil:
		p.deps.Metrics.ObserveAnalysis(OutcomeInsufficient)
	case res.HasPrediction():
		p.deps.Metrics.ObserveAnalysis(OutcomePrediction)
	default:
		p.deps.Metrics.ObserveAnalysis(OutcomeTrend)
	}
	return res, nil
}

// News returns recent sustainability articles, served from the cache
// while it is fresh. It never fails; an unavailable source yields an
// empty list.
func (p *Pipeline) News(ctx context.Context) []providers.Article {
	if p.deps.News == nil {
		return []providers.Article{}
	}

	fetch := func(ctx context.Context) ([]providers.Article, error) {
		articles, err := p.deps.News.Articles(ctx)
		if err != nil {
			p.deps.Metrics.ProviderFallback(ProviderNews)
			return nil, err
		}
		return articles, nil
	}

	if p.deps.NewsCache == nil {
		articles, err := fetch(ctx)
		if err != nil {
			p.deps.Logger.Warn("news unavailable", "error", err)
			return []providers.Article{}
		}
		return articles
	}
	return p.deps.NewsCache.FetchWithCache(ctx, fetch, []providers.Article{})
}

// Recommend returns reduction advice for a processed submission
func (p *Pipeline) Recommend(ctx context.Context, r *Result) string {
	return p.deps.Insights.Recommend(ctx, r.Input, r.Breakdown)
}

// Last returns the most recently processed submission, if any
func (p *Pipeline) Last() (*Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.last != nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmission(float64) {}
func (nopRecorder) ProviderFallback(string)   {}
func (nopRecorder) ObserveAnalysis(string)    {}
