package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/newsroom/internal/config"
	"github.com/sakif/newsroom/internal/handler"
	"github.com/sakif/newsroom/internal/repository"
	pgRepo "github.com/sakif/newsroom/internal/repository/postgres"
	redisRepo "github.com/sakif/newsroom/internal/repository/redis"
	sqliteRepo "github.com/sakif/newsroom/internal/repository/sqlite"
)

// stores is the set of open repositories plus what it takes to check on
// and close them.
//
// STORE SELECTION:
//
//	DATABASE_URL set   → Postgres holds users and sessions
//	otherwise          → SQLite file at DB_PATH
//	SESSION_STORE=redis → sessions move to Redis, users stay in SQL
type stores struct {
	name     string
	users    repository.UserRepository
	sessions repository.SessionRepository
	checks   map[string]handler.Pinger
	closers  []func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]handler.Pinger)}

	if cfg.DatabaseURL != "" {
		db, err := pgRepo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		st.name = "postgres"
		st.users, st.sessions = db.Users(), db.Sessions()
		st.checks["postgres"] = db
		st.closers = append(st.closers, db.Close)
	} else {
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		st.name = "sqlite"
		st.users, st.sessions = db.Users(), db.Sessions()
		st.checks["sqlite"] = db
		st.closers = append(st.closers, func() {
			if err := db.Close(); err != nil {
				logger.Error("closing sqlite", slog.String("error", err.Error()))
			}
		})
	}

	if cfg.SessionStore == config.SessionStoreRedis {
		rs, err := redisRepo.New(ctx, redisRepo.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("opening redis: %w", err)
		}
		st.sessions = rs
		st.checks["redis"] = rs
		st.closers = append(st.closers, func() {
			if err := rs.Close(); err != nil {
				logger.Error("closing redis", slog.String("error", err.Error()))
			}
		})
	}

	return st, nil
}

// Close closes the stores in reverse order of opening.
func (st *stores) Close() {
	for i := len(st.closers) - 1; i >= 0; i-- {
		st.closers[i]()
	}
	st.closers = nil
}
