package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/language"

	"versefinder/internal/config"
	"versefinder/internal/corpus"
	"versefinder/internal/keywords"
	"versefinder/internal/logging"
	"versefinder/internal/oracle"
	"versefinder/internal/oracle/gemini"
	"versefinder/internal/oracle/openai"
	"versefinder/internal/ranking"
	"versefinder/internal/service"
	"versefinder/internal/store"
)

// app holds the components a command works with.
type app struct {
	cfg    *config.AppConfig
	index  *corpus.Index
	oracle oracle.Oracle
	svc    *service.ResearchServiceImpl
	store  *store.Store
}

func (g *Globals) loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if g.Config == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(g.Config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if _, err := logging.Init(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open assembles the full pipeline. The caller must call close.
func (g *Globals) open(ctx context.Context) (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	ix, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		return nil, err
	}
	o, err := newOracle(ctx, cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("%s oracle init failed: %w", cfg.Oracle.Provider, err)
	}
	opts, err := serviceOptions(cfg, ix)
	if err != nil {
		_ = o.Close()
		return nil, err
	}
	svc, err := service.NewResearchService(ix, o, opts)
	if err != nil {
		_ = o.Close()
		return nil, err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		_ = o.Close()
		return nil, err
	}
	return &app{cfg: cfg, index: ix, oracle: o, svc: svc, store: st}, nil
}

func (a *app) close() {
	if err := a.oracle.Close(); err != nil {
		slog.Warn("oracle close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", "error", err)
	}
}

// flushUsage adds the tokens spent by this process to the session.
func (a *app) flushUsage(ctx context.Context, id string) {
	l := a.svc.Ledger()
	if l.Calls() == 0 {
		return
	}
	if err := a.store.AddUsage(context.WithoutCancel(ctx), id, l.Total(), l.Calls()); err != nil {
		logging.FromContext(ctx).Warn("usage not recorded", "error", err)
	}
}

// newOracle builds the configured backend and wraps it with logging, retries and pacing.
func newOracle(ctx context.Context, c config.OracleConfig) (oracle.Oracle, error) {
	mws := []oracle.Middleware{oracle.Logging(slog.Default())}
	var base oracle.Oracle
	switch c.Provider {
	case "gemini":
		cli, err := gemini.NewClient(ctx, gemini.Config{
			APIKeyEnv: c.APIKeyEnv,
			FastModel: c.FastModel,
			DeepModel: c.DeepModel,
		})
		if err != nil {
			return nil, err
		}
		base = cli
		mws = append(mws, oracle.Retry(c.MaxAttempts, time.Second))
	case "openai":
		// The HTTP client retries rate limits itself, honoring Retry-After.
		cli, err := openai.NewClient(openai.Config{
			BaseURL:    c.BaseURL,
			APIKeyEnv:  c.APIKeyEnv,
			FastModel:  c.FastModel,
			DeepModel:  c.DeepModel,
			Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
			MaxRetries: c.MaxAttempts - 1,
		})
		if err != nil {
			return nil, err
		}
		base = cli
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", c.Provider)
	}
	mws = append(mws, oracle.Pacing(time.Duration(c.DelayMillis)*time.Millisecond))
	return oracle.Wrap(base, mws...), nil
}

func serviceOptions(cfg *config.AppConfig, ix *corpus.Index) (service.Options, error) {
	policy, err := keywords.PolicyByName(cfg.Keywords.SuffixPolicy)
	if err != nil {
		return service.Options{}, err
	}
	opts := service.Options{
		FastWindow:    &service.Window{Before: cfg.Search.FastBefore, After: cfg.Search.FastAfter},
		PreciseWindow: &service.Window{Before: cfg.Search.PreciseBefore, After: cfg.Search.PreciseAfter},
		CacheSize:     cfg.Search.CacheSize,
		Strategy:      service.Strategy(cfg.Keywords.Strategy),
		SuffixPolicy:  policy,
		GroupVariants: cfg.Keywords.GroupVariants,
		FilterBatch:   cfg.Relevance.BatchSize,
		RankBatch:     cfg.Ranking.BatchSize,
		Thresholds: ranking.Thresholds{
			High:   cfg.Ranking.HighThreshold,
			Medium: cfg.Ranking.MediumThreshold,
		},
	}
	if opts.Strategy == service.StrategyValidate {
		d, err := dictionary(cfg, ix)
		if err != nil {
			return service.Options{}, err
		}
		opts.Dictionary = d
	}
	return opts, nil
}

// dictionary loads the configured word list, or builds it from the corpus.
func dictionary(cfg *config.AppConfig, ix *corpus.Index) (*keywords.Dictionary, error) {
	lang, err := corpusLanguage(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Corpus.DictionaryPath != "" {
		return keywords.LoadDictionary(cfg.Corpus.DictionaryPath, lang)
	}
	return keywords.BuildDictionary(ix, lang), nil
}

// exportDictionary tokenizes the corpus afresh and writes the word list to out.
// A configured dictionary file is never read here.
func exportDictionary(cfg *config.AppConfig, ix *corpus.Index, out string) (*keywords.Dictionary, error) {
	lang, err := corpusLanguage(cfg)
	if err != nil {
		return nil, err
	}
	d := keywords.BuildDictionary(ix, lang)
	if err := d.Save(out); err != nil {
		return nil, err
	}
	return d, nil
}

func corpusLanguage(cfg *config.AppConfig) (language.Tag, error) {
	lang, err := language.Parse(cfg.Corpus.Language)
	if err != nil {
		return language.Und, fmt.Errorf("corpus language: %w", err)
	}
	return lang, nil
}
