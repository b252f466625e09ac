// Package redis stores sessions in Redis. Selected with SESSION_STORE=redis;
// users stay in the SQL store.
//
// Each session is a JSON value under "newsroom:session:<id>" with a Redis TTL
// equal to the time left until ExpiresAt, so Redis does its own purging.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/repository"
)

const keyPrefix = "newsroom:session:"

var _ repository.SessionRepository = (*SessionStore)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

type SessionStore struct {
	rdb *goredis.Client
	now func() time.Time
}

// New connects and pings Redis.
func New(ctx context.Context, opts Options) (*SessionStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &SessionStore{rdb: rdb, now: time.Now}, nil
}

func (s *SessionStore) Close() error {
	return s.rdb.Close()
}

func (s *SessionStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// record is the stored shape. ID is the key, so it isn't repeated.
type record struct {
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *SessionStore) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired; nothing would ever be able to read it.
		return nil
	}

	raw, err := json.Marshal(record{
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt.UnixMilli(),
		ExpiresAt: session.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("redis: encoding session: %w", err)
	}

	if err := s.rdb.Set(ctx, keyPrefix+session.ID, raw, ttl).Err(); err != nil {
		return apperror.StoreUnavailable("creating session", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperror.NotFound("session", "(redacted)")
		}
		return nil, apperror.StoreUnavailable("looking up session", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperror.StoreUnavailable("decoding session", err)
	}

	return &model.Session{
		ID:        id,
		UserID:    rec.UserID,
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
	}, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return apperror.StoreUnavailable("deleting session", err)
	}
	return nil
}

// DeleteExpired is a no-op: key TTLs already remove expired sessions.
func (s *SessionStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
