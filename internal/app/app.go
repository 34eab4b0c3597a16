// Package app builds the pipeline and its collaborators from configuration.
// It is shared by the server and the command line tool.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/carbon-footprint/internal/analysis"
	"github.com/smukkama/carbon-footprint/internal/cache"
	"github.com/smukkama/carbon-footprint/internal/emissions"
	"github.com/smukkama/carbon-footprint/internal/history"
	"github.com/smukkama/carbon-footprint/internal/insights"
	"github.com/smukkama/carbon-footprint/internal/metrics"
	"github.com/smukkama/carbon-footprint/internal/pipeline"
	"github.com/smukkama/carbon-footprint/internal/providers"
	"github.com/smukkama/carbon-footprint/pkg/config"
)

// NewLogger returns a text logger writing to w
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// LoadFactors returns the default factors merged with the configured
// override file, if any
func LoadFactors(cfg config.FactorsConfig) (emissions.Factors, error) {
	if cfg.OverridePath == "" {
		return emissions.DefaultFactors(), nil
	}
	overrides, err := emissions.LoadFactorsFile(cfg.OverridePath)
	if err != nil {
		return nil, err
	}
	return emissions.Merge(emissions.DefaultFactors(), overrides), nil
}

// AnalysisOptions maps configuration onto analysis options
func AnalysisOptions(cfg config.AnalysisConfig) analysis.Options {
	opts := analysis.DefaultOptions()
	opts.Cleaning.ZThreshold = cfg.ZThreshold
	opts.MinRegressionRecords = cfg.MinRegressionRecords
	opts.Forest.Trees = cfg.Trees
	opts.Forest.Seed = cfg.Seed
	return opts
}

// Options are the runtime pieces a binary supplies itself
type Options struct {
	Store      history.Store
	Publisher  pipeline.Publisher
	Registerer prometheus.Registerer
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Pipeline is a built pipeline and the resources it holds
type Pipeline struct {
	*pipeline.Pipeline
	closers []func() error
}

// Close releases resources opened while building
func (p *Pipeline) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewPipeline builds a pipeline. Providers without an API key are left
// out so the pipeline uses its static fallbacks.
func NewPipeline(ctx context.Context, cfg *config.Config, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	factors, err := LoadFactors(cfg.Factors)
	if err != nil {
		return nil, fmt.Errorf("failed to load emission factors: %w", err)
	}

	built := &Pipeline{}
	deps := pipeline.Deps{
		Store:     opts.Store,
		Factors:   factors,
		Publisher: opts.Publisher,
		Analysis:  AnalysisOptions(cfg.Analysis),
		Logger:    logger,
	}

	var cacheOpts []cache.Option
	cacheOpts = append(cacheOpts, cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(logger))
	if opts.Registerer != nil {
		m := metrics.New(opts.Registerer)
		deps.Metrics = m
		cacheOpts = append(cacheOpts, cache.WithObserver(m))
	}

	p := cfg.Providers
	breaker := providers.BreakerConfig{MaxFailures: p.BreakerFailures, ResetTimeout: p.BreakerReset}
	newClient := func(name string) *providers.HTTPClient {
		return providers.NewHTTPClient(name, opts.HTTPClient, p.HTTPTimeout, breaker, logger)
	}

	if p.GridAPIKey != "" {
		deps.Grid = providers.NewCarbonInterfaceClient(newClient("carbon_interface"), p.GridURL, p.GridAPIKey, p.GridCountry, p.GridRegion)
	}
	if p.AirQualityAPIKey != "" {
		deps.AirQuality = providers.NewAirNowClient(newClient("airnow"), p.AirQualityURL, p.AirQualityAPIKey, p.Latitude, p.Longitude)
	}

	var chat *providers.ChatClient
	if p.LLMAPIKey != "" {
		chat = providers.NewChatClient(newClient("chat"), p.LLMURL, p.LLMAPIKey, p.LLMModel)
		deps.Insights = insights.NewEngine(chat, logger)
	}

	if p.NewsAPIKey != "" {
		newsOpts := providers.NewsOptions{
			MaxArticles:  p.NewsMaxArticles,
			LookbackDays: p.NewsLookbackDays,
		}
		if chat != nil {
			newsOpts.Summarizer = chat
		}
		deps.News = providers.NewNewsAPIClient(newClient("newsapi"), p.NewsURL, p.NewsAPIKey, newsOpts)

		store, closeStore := cacheStore(ctx, cfg, logger)
		if closeStore != nil {
			built.closers = append(built.closers, closeStore)
		}
		deps.NewsCache = cache.New[[]providers.Article](store, cacheOpts...)
	}

	pl, err := pipeline.New(deps)
	if err != nil {
		built.Close()
		return nil, err
	}
	built.Pipeline = pl
	return built, nil
}

// cacheStore returns the configured cache store. An unreachable Redis
// falls back to the file store.
func cacheStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, func() error) {
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return cache.NewFileStore(cfg.Cache.FilePath), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, caching to file", "addr", cfg.Redis.Addr, "error", err)
		client.Close()
		return cache.NewFileStore(cfg.Cache.FilePath), nil
	}
	return cache.NewRedisStore(client, cfg.Cache.RedisKey), client.Close
}
