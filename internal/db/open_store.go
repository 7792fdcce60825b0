package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/dinutri/internal/config"
	"github.com/geocoder89/dinutri/internal/observability"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/geocoder89/dinutri/internal/repo/memory"
	"github.com/geocoder89/dinutri/internal/repo/mongo"
	"github.com/geocoder89/dinutri/internal/repo/postgres"
)

const connectTimeout = 5 * time.Second

// OpenStore picks the storage backend once, at startup. A backend that cannot
// be reached within connectTimeout leaves the process on the in-memory store
// (degraded mode) rather than failing to boot.
func OpenStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) repo.Store {
	if cfg.ForceMemoryMode || cfg.StoreDriver == config.DriverMemory {
		log.Info("store.selected", "driver", "memory", "reason", "configured")
		return memory.NewStore()
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	store, err := dial(ctx, cfg, prom)
	if err != nil {
		log.Warn("store.degraded_mode",
			"driver", cfg.StoreDriver,
			"err", err,
			"fallback", "memory",
		)
		return memory.NewStore()
	}

	log.Info("store.selected", "driver", store.Driver())
	return store
}

func dial(ctx context.Context, cfg config.Config, prom *observability.Prom) (repo.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		return mongo.Connect(ctx, cfg.MongoURL, cfg.DBName, prom)

	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}

		s := postgres.NewStore(pool, prom)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
