package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the PostgreSQL Credential Store.
type UserDB struct {
	pool *pgxpool.Pool
}

const userColumns = `id, email, password_hash, name, google_id, github_id, created_at, updated_at`

func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID,
		user.Email,
		nullable(user.PasswordHash),
		user.Name,
		nullable(user.GoogleID),
		nullable(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting user (email=%s): %w", user.Email, translateError(err, "creating user"))
	}
	return nil
}

func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id", id)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email", email)
}

func (u *UserDB) GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	return u.getOne(ctx, column, providerID)
}

func (u *UserDB) LinkProvider(ctx context.Context, userID string, provider model.Provider, providerID string) error {
	column, err := providerColumn(provider)
	if err != nil {
		return err
	}

	tag, err := u.pool.Exec(ctx,
		`UPDATE users SET `+column+` = $1, updated_at = $2 WHERE id = $3`,
		providerID, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("postgres: linking %s to user %s: %w", provider, userID, translateError(err, "linking provider"))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func (u *UserDB) getOne(ctx context.Context, column, value string) (*model.User, error) {
	var (
		user                             model.User
		passwordHash, googleID, githubID *string
	)

	err := u.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value,
	).Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&user.Name,
		&googleID,
		&githubID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", column, translateError(err, "looking up user"))
	}

	user.PasswordHash = deref(passwordHash)
	user.GoogleID = deref(googleID)
	user.GitHubID = deref(githubID)
	return &user, nil
}

func providerColumn(p model.Provider) (string, error) {
	switch p {
	case model.ProviderGoogle:
		return "google_id", nil
	case model.ProviderGitHub:
		return "github_id", nil
	}
	return "", apperror.ValidationFailed("provider", fmt.Sprintf("unknown provider %q", p))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
