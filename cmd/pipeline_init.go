package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/maclay/research-assistant/internal/documents"
	"github.com/maclay/research-assistant/internal/pipeline"
	"github.com/maclay/research-assistant/internal/progress"
	"github.com/maclay/research-assistant/internal/store"
	"github.com/maclay/research-assistant/internal/verifier"
	"github.com/maclay/research-assistant/pkg/gemini"
)

// appEnv holds the initialized store and pipeline needed by the run/serve
// commands.
type appEnv struct {
	Store     store.Store
	Hub       *progress.Hub
	Documents *documents.Library
	Processor *pipeline.Processor
}

// Close releases resources held by the environment.
func (env *appEnv) Close() {
	if env.Store != nil {
		_ = env.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, the generation client, and the pipeline.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	gen := gemini.NewClient(cfg.Gemini.Key,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithModel(cfg.Gemini.Model),
		gemini.WithTimeout(time.Duration(cfg.Gemini.TimeoutSecs)*time.Second),
	)

	docs := documents.New(cfg.Documents.Dir, cfg.InternalAssetPrefix(),
		documents.WithMaxExcerptChars(cfg.Documents.MaxExcerptChars),
		documents.WithPDFExtractor(documents.NewPdfToText(cfg.Documents.PdfToTextPath)),
	)

	ver := verifier.New(cfg.InternalAssetPrefix(),
		verifier.WithTimeout(time.Duration(cfg.Verifier.TimeoutSecs)*time.Second),
		verifier.WithMaxConcurrent(cfg.Verifier.MaxConcurrent),
		verifier.WithProbeRate(cfg.Verifier.ProbesPerSecond),
	)

	hub := progress.NewHub()
	proc := pipeline.New(gen, docs, ver, hub,
		pipeline.WithRetry(cfg.Pipeline.MaxAttempts, time.Duration(cfg.Pipeline.BackoffUnitMs)*time.Millisecond),
	)

	return &appEnv{
		Store:     st,
		Hub:       hub,
		Documents: docs,
		Processor: proc,
	}, nil
}
