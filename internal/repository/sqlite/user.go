package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the SQLite Credential Store.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, email, password_hash, name, google_id, github_id, created_at, updated_at`

// Create inserts a new user.
//
// ID GENERATION WITH xid:
// 20 chars, URL-safe, sortable by creation time. The caller's struct is
// modified in place, so after Create the user has its ID and timestamps.
//
// A UNIQUE violation comes back as apperror.Conflict with Field set to the
// column that collided ("email", "google_id" or "github_id").
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		nullString(user.PasswordHash),
		user.Name,
		nullString(user.GoogleID),
		nullString(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, translateError(err, "creating user"))
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id", id)
}

// GetByEmail retrieves a user by email. Emails are stored normalised, so the
// caller must normalise too.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email", email)
}

// GetByProviderID retrieves the user linked to an OAuth provider account.
func (u *UserDB) GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	return u.getOne(ctx, column, providerID)
}

// LinkProvider sets google_id or github_id on an existing user.
//
// Same RowsAffected pattern as an UPDATE anywhere else: 0 rows means the
// user doesn't exist.
func (u *UserDB) LinkProvider(ctx context.Context, userID string, provider model.Provider, providerID string) error {
	column, err := providerColumn(provider)
	if err != nil {
		return err
	}

	// column comes from providerColumn's fixed set, never from user input.
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		providerID,
		time.Now().UTC(),
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking %s to user %s: %w", provider, userID, translateError(err, "linking provider"))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", apperror.StoreUnavailable("linking provider", err))
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", userID)
	}

	return nil
}

// getOne runs a single-row lookup on one of the unique columns.
func (u *UserDB) getOne(ctx context.Context, column, value string) (*model.User, error) {
	var (
		user         model.User
		passwordHash sql.NullString
		googleID     sql.NullString
		githubID     sql.NullString
	)

	err := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, translateError(err, "looking up user"))
	}

	user.PasswordHash = passwordHash.String
	user.GoogleID = googleID.String
	user.GitHubID = githubID.String

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
