package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/litscope/internal/enrich"
	"github.com/sells-group/litscope/internal/search"
	"github.com/sells-group/litscope/internal/session"
	"github.com/sells-group/litscope/pkg/anthropic"
	"github.com/sells-group/litscope/pkg/pubmed"
	"github.com/sells-group/litscope/pkg/trials"
)

// workbenchEnv bundles a session with the resources behind it.
type workbenchEnv struct {
	Session *session.Session
	cache   *pubmed.Cache
}

// Close releases provider resources.
func (e *workbenchEnv) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
}

// newWorkbench wires providers and the inference backend from config.
func newWorkbench() (*workbenchEnv, error) {
	env := &workbenchEnv{}

	pubmedOpts := []pubmed.Option{}
	if cfg.PubMed.BaseURL != "" {
		pubmedOpts = append(pubmedOpts, pubmed.WithBaseURL(cfg.PubMed.BaseURL))
	}
	if cfg.PubMed.CachePath != "" {
		cache, err := pubmed.NewCache(cfg.PubMed.CachePath, time.Duration(cfg.PubMed.CacheTTLHours)*time.Hour)
		if err != nil {
			zap.L().Warn("workbench: pubmed cache unavailable", zap.Error(err))
		} else {
			env.cache = cache
			pubmedOpts = append(pubmedOpts, pubmed.WithCache(cache))
		}
	}

	trialsOpts := []trials.Option{}
	if cfg.Trials.BaseURL != "" {
		trialsOpts = append(trialsOpts, trials.WithBaseURL(cfg.Trials.BaseURL))
	}

	providers := []search.Provider{
		search.NewPubMedProvider(pubmed.NewClient(cfg.PubMed.Key, pubmedOpts...), cfg.Workbench.IDCap),
		search.NewTrialsProvider(trials.NewClient(trialsOpts...), cfg.Workbench.IDCap),
	}

	backend := enrich.NewAnthropicBackend(
		anthropic.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.Model,
		cfg.Anthropic.ChunkSize,
	)

	env.Session = session.New(session.Config{
		SearchLimit:   cfg.Workbench.SearchLimit,
		MaxEnrichRows: cfg.Workbench.MaxEnrichRows,
		Locale:        cfg.Workbench.Locale,
	}, providers, backend)

	return env, nil
}
