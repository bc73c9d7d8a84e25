package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ansel/lore/internal/config"
	"github.com/ansel/lore/internal/logger"
	"github.com/ansel/lore/pkg/docstore"
	"github.com/ansel/lore/pkg/embedding"
	"github.com/ansel/lore/pkg/index"
	"github.com/ansel/lore/pkg/knowledge"
	"github.com/ansel/lore/pkg/reconcile"
	"github.com/ansel/lore/pkg/search"
	"github.com/ansel/lore/pkg/vector"
)

// app wires the configured services together for a command invocation.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	store  *docstore.Store
	idx    *index.Index
	vec    *vector.Index
	engine *reconcile.Engine
	search *search.Service
	kb     *knowledge.Service
}

// openApp loads configuration and opens every store. Commands that only
// print output pass console=false to keep logs out of their stdout.
func openApp(console bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.Logging.Console = console
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	zl := log.GetZerolog()

	a := &app{cfg: cfg, log: log}
	if err := a.open(zl); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(zl zerolog.Logger) error {
	store, err := docstore.New(a.cfg.RootDir, zl)
	if err != nil {
		return err
	}
	a.store = store

	idx, err := index.Open(a.cfg.IndexPath, zl)
	if err != nil {
		return err
	}
	a.idx = idx

	var embedder embedding.Provider
	if a.cfg.Embedding.Provider == "openai" {
		p := embedding.NewOpenAIProvider(a.cfg.Embedding.APIKey, a.cfg.Embedding.Model)
		embedder = p

		dimension := a.cfg.Embedding.Dimension
		if dimension == 0 {
			dimension = p.Dimension()
		}
		vec, err := vector.Open(a.cfg.VectorPath, dimension, zl)
		if err != nil {
			return err
		}
		a.vec = vec
	}

	a.engine = reconcile.New(store, idx, a.vec, embedder, zl)
	a.search = search.New(idx, a.vec, embedder, zl,
		search.WithRRFK(a.cfg.Search.RRFK),
		search.WithOverfetch(a.cfg.Search.Overfetch),
	)
	a.kb = knowledge.New(store, idx, a.engine, a.search, zl)
	return nil
}

// close flushes pending work and releases every handle, safe on a partially
// opened app.
func (a *app) close() {
	if a.engine != nil {
		a.engine.Flush()
	}
	if a.idx != nil {
		a.idx.Close()
	}
	if a.vec != nil {
		a.vec.Close()
	}
	if a.log != nil {
		a.log.Close()
	}
}
