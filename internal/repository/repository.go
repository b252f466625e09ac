// Package repository declares the storage interfaces the services depend on.
//
// Implementations live in sub-packages (sqlite, postgres, redis). All of them
// translate driver errors into apperror values:
//   - no matching row            → apperror.ErrNotFound
//   - UNIQUE constraint violated → apperror.ErrConflict (Field = column name)
//   - anything else              → apperror.ErrStoreUnavailable
package repository

import (
	"context"
	"time"

	"github.com/sakif/newsroom/internal/model"
)

// UserRepository is the Credential Store.
//
// The store MUST enforce uniqueness of email, google_id and github_id itself;
// the reconciliation logic relies on the resulting Conflict errors to recover
// from concurrent sign-ups.
type UserRepository interface {
	// Create inserts a new user and fills in ID and timestamps.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error)
	// LinkProvider sets the provider id on an existing user.
	LinkProvider(ctx context.Context, userID string, provider model.Provider, providerID string) error
}

// SessionRepository persists server-side session records.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes every session that expired before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
