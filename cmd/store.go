package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/fetcher"
	"github.com/plansight/enroll-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "enroll.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newFetcher assembles the source fetcher: storage keys resolve
// against the configured base URI when one is set, otherwise against
// the local mirror. Everything goes through one bounded cache so the
// audit logger's hash re-fetches are free.
func newFetcher() fetcher.Fetcher {
	local := &fetcher.LocalFetcher{Root: cfg.Source.LocalRoot}

	var inner fetcher.Fetcher = local
	if cfg.Source.BaseURI != "" {
		timeout := time.Duration(cfg.Source.TimeoutSecs) * time.Second
		inner = &baseFetcher{
			base: strings.TrimRight(cfg.Source.BaseURI, "/"),
			inner: &fetcher.Multi{
				HTTP:  fetcher.NewHTTP(cfg.Source.RatePerSecond, timeout),
				FTP:   fetcher.NewFTP(timeout),
				Local: local,
			},
		}
	}
	return fetcher.NewCache(inner, cfg.Source.CacheSize)
}

// baseFetcher resolves scheme-less storage keys against a base URI.
type baseFetcher struct {
	base  string
	inner fetcher.Fetcher
}

func (b *baseFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if !strings.Contains(uri, "://") {
		uri = b.base + "/" + strings.TrimLeft(uri, "/")
	}
	return b.inner.Fetch(ctx, uri)
}
