package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/batch"
	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/domain"
	"github.com/sells-group/crm-resolver/internal/match"
	"github.com/sells-group/crm-resolver/internal/resolver"
	"github.com/sells-group/crm-resolver/internal/review"
)

// openPool connects to Postgres using the configured pool bounds.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store database_url is required (RESOLVER_STORE_DATABASE_URL)")
	}

	pc, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse database url")
	}
	if cfg.Store.MaxConns > 0 {
		pc.MaxConns = cfg.Store.MaxConns
	}
	if cfg.Store.MinConns > 0 {
		pc.MinConns = cfg.Store.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, eris.Wrap(err, "connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}
	return pool, nil
}

// newRunner assembles the resolution stack over pool.
func newRunner(pool *pgxpool.Pool) *batch.Runner {
	store := crm.NewPostgresStore(pool)
	classifier := domain.NewClassifier(cfg.Resolver.PersonalDomains...)
	pipeline := resolver.New(store, classifier, match.TrigramMatcher{}, cfg.Resolver.FuzzyThreshold)
	return batch.NewRunner(store, pipeline, review.NewQueue(store), pool)
}
