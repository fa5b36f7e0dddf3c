package shared

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"agencyos/internal/config"
	"agencyos/internal/store"
)

// Open builds the configured backend. Missing settings or an unreachable
// backend yield Disabled; Open never fails.
func Open(ctx context.Context, cfg config.Remote) Store {
	if !cfg.Enabled() {
		log.Printf("shared: remote sync disabled (backend not configured), using local storage only")
		return Disabled{Reason: "not configured"}
	}

	backend, err := open(ctx, cfg)
	if err != nil {
		log.Printf("shared: remote sync disabled: %v", err)
		return Disabled{Reason: err.Error()}
	}
	log.Printf("shared: syncing %s via %s", Path, strings.ToLower(cfg.Backend))
	return backend
}

func open(ctx context.Context, cfg config.Remote) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.URL)
	case "postgres", "postgresql":
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		db, err := store.Open(openCtx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := store.ApplyMigrations(openCtx, db, store.Migrations()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return NewPostgresStore(db, cfg.URL), nil
	default:
		return nil, fmt.Errorf("unsupported remote backend %q", cfg.Backend)
	}
}
