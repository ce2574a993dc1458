package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/credentials"
	"github.com/sells-group/campaign-engine/internal/dedup"
	"github.com/sells-group/campaign-engine/internal/engine"
	"github.com/sells-group/campaign-engine/internal/events"
	"github.com/sells-group/campaign-engine/internal/provider"
	"github.com/sells-group/campaign-engine/internal/queue"
	"github.com/sells-group/campaign-engine/internal/store"
)

// engineEnv holds the initialized store, queue, providers, and engine
// needed by the serve and worker commands.
type engineEnv struct {
	Store     store.Store
	Queue     queue.Queue
	Hub       *events.Hub
	Lifecycle *engine.Lifecycle
	Pool      *engine.Pool
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Queue != nil {
		_ = e.Queue.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, queue, provider registry, and worker pool.
// publishers are composed on top of the in-process hub; the worker command
// adds a webhook forwarder here. Callers should defer env.Close().
func initEnv(ctx context.Context, extra ...events.Publisher) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	q, err := initQueue(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	providers, err := initProviders()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	hub := events.NewHub(cfg.Events.BufferSize)
	var pub events.Publisher = hub
	if len(extra) > 0 {
		pub = append(events.Multi{hub}, extra...)
	}

	pipeline := engine.NewPipeline(st, providers, dedup.NewService(st), pub)
	wallClock := time.Duration(cfg.Worker.MaxWallClockMins) * time.Minute

	return &engineEnv{
		Store:     st,
		Queue:     q,
		Hub:       hub,
		Lifecycle: engine.NewLifecycle(st, q, pub),
		Pool:      engine.NewPool(st, q, pipeline, pub, cfg.Worker.PoolSize, wallClock),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "campaigns.db"
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

// initQueue builds the job queue. The postgres queue shares the store's
// pool when the store is postgres too.
func initQueue(st store.Store) (queue.Queue, error) {
	pollInterval := time.Duration(cfg.Queue.PollIntervalSecs) * time.Second

	switch cfg.Queue.Driver {
	case "memory":
		return queue.NewMemory(0), nil
	case "postgres":
		if ps, ok := st.(*store.PostgresStore); ok {
			return queue.NewPostgres(ps.Pool(), pollInterval), nil
		}
		return nil, eris.New("postgres queue requires the postgres store driver")
	default:
		return nil, eris.Errorf("unsupported queue driver: %s", cfg.Queue.Driver)
	}
}

// initProviders builds the provider factory. Each run resolves its
// tenant's credentials through the factory, falling back to the shared
// defaults configured here; providers without a credential are omitted
// from dispatch so a deployment can run with any subset.
func initProviders() (*provider.Factory, error) {
	resolver, err := credentials.LoadResolver(cfg.Credentials.File)
	if err != nil {
		return nil, err
	}
	resolver.SetDefault(credentials.KindPlaces, credentials.Credential{
		Key: cfg.Places.Key, BaseURL: cfg.Places.BaseURL,
	})
	resolver.SetDefault(credentials.KindCompaniesHouse, credentials.Credential{
		Key: cfg.CompaniesHouse.Key, BaseURL: cfg.CompaniesHouse.BaseURL,
	})
	resolver.SetDefault(credentials.KindDiscovery, credentials.Credential{
		Key: cfg.Anthropic.Key,
	})

	factory := provider.NewFactory(resolver, cfg.Places, cfg.CompaniesHouse, cfg.Anthropic)

	// Fail fast when no default credentials exist at all; tenant overrides
	// alone cannot cover campaigns for other tenants.
	if _, err := factory.ForTenant(""); err != nil {
		return nil, eris.Wrap(err, "no default provider credentials configured")
	}
	return factory, nil
}

// startStaleRequeuer periodically returns jobs leased by crashed workers
// to the pending state.
func startStaleRequeuer(ctx context.Context, q queue.Queue) {
	staleAfter := 2 * time.Duration(cfg.Worker.MaxWallClockMins) * time.Minute

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := q.RequeueStale(ctx, staleAfter); err != nil {
					zap.L().Error("stale job requeue failed", zap.Error(err))
				}
			}
		}
	}()
}
