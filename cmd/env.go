package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/config"
	"github.com/sells-group/teamresolve/internal/correction"
	"github.com/sells-group/teamresolve/internal/importer"
	"github.com/sells-group/teamresolve/internal/matcher"
	"github.com/sells-group/teamresolve/internal/merge"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/quarantine"
	"github.com/sells-group/teamresolve/internal/resilience"
	"github.com/sells-group/teamresolve/internal/review"
	"github.com/sells-group/teamresolve/internal/scorer"
	"github.com/sells-group/teamresolve/internal/store"
)

// appEnv holds the services a command needs.
type appEnv struct {
	Store       store.Store
	Matcher     *matcher.Matcher
	Importer    *importer.Job
	Review      *review.Service
	Merges      *merge.Coordinator
	Corrections *correction.Ledger
	Quarantine  *quarantine.Service
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "teamresolve.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required (TEAMRESOLVE_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

// initEnv opens and migrates the store, registers configured providers and
// wires the services over it.
func initEnv(ctx context.Context, c *config.Config) (*appEnv, error) {
	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}
	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	if err := syncProviders(ctx, st, c.Providers); err != nil {
		env.Close()
		return nil, err
	}

	if err := scorer.ValidateConfig(c.Scorer, c.Matcher.AutoAccept); err != nil {
		env.Close()
		return nil, err
	}
	policy, err := matcher.PolicyFromConfig(c.Matcher)
	if err != nil {
		env.Close()
		return nil, err
	}

	retry := resilience.FromConfig(c.Retry)
	norm := normalize.New(normalize.Options{
		MinBirthYear: c.Normalize.MinBirthYear,
		MaxBirthYear: c.Normalize.MaxBirthYear,
		SeasonYear:   c.Normalize.SeasonYear,
	})
	env.Matcher = matcher.New(st, norm, scorer.New(c.Scorer, c.Normalize.SeasonYear), matcher.Options{
		Policy:         policy,
		CandidateLimit: c.Matcher.CandidateLimit,
		Retry:          retry,
	})
	env.Importer = importer.New(st, env.Matcher, importer.Options{
		Concurrency:   c.Import.Concurrency,
		RowsPerSecond: c.Import.RowsPerSecond,
		Finalize:      c.Import.Finalize,
		Retry:         retry,
	})
	env.Review = review.New(st, norm, c.Review, env.Importer)
	env.Merges = merge.New(st, c.Normalize.SeasonYear)
	env.Corrections = correction.New(st)
	env.Quarantine = quarantine.New(st)
	return env, nil
}

func syncProviders(ctx context.Context, st store.Store, providers []config.ProviderConfig) error {
	for _, p := range providers {
		name := p.Name
		if name == "" {
			name = p.Code
		}
		if err := st.UpsertProvider(ctx, model.Provider{Code: p.Code, Name: name, ReusesClubIDs: p.ReusesClubIDs}); err != nil {
			return eris.Wrapf(err, "sync provider %s", p.Code)
		}
	}
	if len(providers) > 0 {
		zap.L().Debug("providers synced", zap.Int("count", len(providers)))
	}
	return nil
}
