// Package service holds the business logic that sits between the HTTP
// handlers and the stores:
//
//	AuthHandler (HTTP) → AuthService (identity rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt)
//	FeedHandler (HTTP) → NewsService (cache + fallback) → news.Client (newsapi.org)
//
// Nothing in here reads requests or writes cookies; that is the handler's
// job.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/auth"
	"github.com/sakif/newsroom/internal/metrics"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/repository"
)

// AuthService reconciles the three ways into an account (local password,
// Google, GitHub) onto a single user record.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → the Credential Store
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput is a local sign-up request. The handler has already
// validated the shape; AuthService still enforces the rules it owns.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// NormalizeEmail trims and lower-cases an address. Every stored email and
// every lookup goes through it, so "Alice@X.com " and "alice@x.com" are the
// same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =========================================================================
// LOCAL REGISTRATION AND LOGIN
// =========================================================================

// Register creates a local account.
//
// Returns apperror.ErrDuplicateEmail when the address is taken, whether the
// existing account is local or OAuth-only. Registering never links onto an
// existing account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		metrics.RecordAuth(metrics.MethodRegister, metrics.OutcomeFailure)
		return nil, apperror.DuplicateEmail(email)
	case !errors.Is(err, apperror.ErrNotFound):
		metrics.RecordAuth(metrics.MethodRegister, metrics.OutcomeError)
		return nil, fmt.Errorf("service/auth: checking email %s: %w", email, err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration for the same address.
		if apperror.IsConflictOn(err, "email") {
			metrics.RecordAuth(metrics.MethodRegister, metrics.OutcomeFailure)
			return nil, apperror.DuplicateEmail(email)
		}
		metrics.RecordAuth(metrics.MethodRegister, metrics.OutcomeError)
		return nil, fmt.Errorf("service/auth: creating user %s: %w", email, err)
	}

	metrics.RecordAuth(metrics.MethodRegister, metrics.OutcomeSuccess)
	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// AuthenticateLocal checks an email and password.
//
// Unknown email, an OAuth-only account and a wrong password all return the
// same apperror.ErrInvalidCredentials so a caller can't probe which
// addresses exist. The actual reason is only logged.
func (s *AuthService) AuthenticateLocal(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, s.rejectLocal("unknown_email", "")
		}
		metrics.RecordAuth(metrics.MethodLocal, metrics.OutcomeError)
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if !user.HasPassword() {
		return nil, s.rejectLocal("no_password", user.ID)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unreadable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, s.rejectLocal("wrong_password", user.ID)
	}

	metrics.RecordAuth(metrics.MethodLocal, metrics.OutcomeSuccess)
	s.logger.Info("user authenticated", slog.String("userID", user.ID), slog.String("method", "local"))
	return user, nil
}

func (s *AuthService) rejectLocal(reason, userID string) error {
	metrics.RecordAuth(metrics.MethodLocal, metrics.OutcomeFailure)
	s.logger.Info("local login rejected", slog.String("reason", reason), slog.String("userID", userID))
	return apperror.InvalidCredentials(reason)
}

// =========================================================================
// OAUTH RECONCILIATION
// =========================================================================

// AuthenticateOAuth maps a provider identity onto an account:
//
//  1. An account already linked to this provider id wins. It is returned
//     unchanged, even if the provider now reports a different email.
//  2. Otherwise an account with the same email gets the provider id linked.
//     Its password, if any, keeps working.
//  3. Otherwise a new passwordless account is created.
//
// GitHub users with no usable email get "<username>@github.com".
//
// Two callbacks for the same person can race between the lookup and the
// insert. The store's UNIQUE constraints catch that, and a conflict on
// create is answered by looking the winner up again and linking onto it.
func (s *AuthService) AuthenticateOAuth(ctx context.Context, id *model.OAuthIdentity) (*model.User, error) {
	user, err := s.reconcile(ctx, id)
	method := oauthMethod(id)
	if err != nil {
		if errors.Is(err, apperror.ErrStoreUnavailable) {
			metrics.RecordAuth(method, metrics.OutcomeError)
		} else {
			metrics.RecordAuth(method, metrics.OutcomeFailure)
		}
		return nil, err
	}

	metrics.RecordAuth(method, metrics.OutcomeSuccess)
	s.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.String("method", method),
	)
	return user, nil
}

func (s *AuthService) reconcile(ctx context.Context, id *model.OAuthIdentity) (*model.User, error) {
	if id == nil || !id.Provider.Valid() || id.ProviderID == "" {
		return nil, apperror.OAuthProvider(oauthMethod(id), errors.New("identity has no provider id"))
	}

	// Step 1: already linked.
	user, found, err := s.findByProvider(ctx, id)
	if err != nil || found {
		return user, err
	}

	email := NormalizeEmail(id.Email)
	if email == "" && id.Provider == model.ProviderGitHub && id.Username != "" {
		email = strings.ToLower(id.Username) + "@github.com"
	}
	if email == "" {
		return nil, apperror.OAuthProvider(string(id.Provider), errors.New("provider returned no email"))
	}

	// Step 2: same email, link.
	user, found, err = s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if found {
		return s.link(ctx, user, id)
	}

	// Step 3: new account.
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		name = email
	}
	user = &model.User{Email: email, Name: name}
	user.SetProviderID(id.Provider, id.ProviderID)

	err = s.users.Create(ctx, user)
	if err == nil {
		s.logger.Info("user created from oauth",
			slog.String("userID", user.ID),
			slog.String("provider", string(id.Provider)),
		)
		return user, nil
	}
	if !errors.Is(err, apperror.ErrConflict) {
		return nil, fmt.Errorf("service/auth: creating %s user: %w", id.Provider, err)
	}

	// Lost a race. Whoever won holds either our provider id or our email.
	s.logger.Warn("oauth create conflicted, re-fetching", slog.String("provider", string(id.Provider)))

	if winner, found, ferr := s.findByProvider(ctx, id); ferr != nil || found {
		return winner, ferr
	}
	if winner, found, ferr := s.findByEmail(ctx, email); ferr != nil {
		return nil, ferr
	} else if found {
		return s.link(ctx, winner, id)
	}
	return nil, fmt.Errorf("service/auth: creating %s user: %w", id.Provider, err)
}

// link sets the provider id on an account found by email.
func (s *AuthService) link(ctx context.Context, user *model.User, id *model.OAuthIdentity) (*model.User, error) {
	switch existing := user.ProviderID(id.Provider); existing {
	case id.ProviderID:
		return user, nil
	case "":
	default:
		// The email's account already belongs to a different account at
		// this provider. Links are never overwritten.
		s.logger.Warn("refusing to relink account",
			slog.String("userID", user.ID),
			slog.String("provider", string(id.Provider)),
		)
		return nil, apperror.OAuthProvider(string(id.Provider), errors.New("email is linked to another account at this provider"))
	}

	err := s.users.LinkProvider(ctx, user.ID, id.Provider, id.ProviderID)
	if err != nil {
		// A concurrent callback linked this same provider id first.
		if errors.Is(err, apperror.ErrConflict) {
			if winner, found, ferr := s.findByProvider(ctx, id); ferr != nil || found {
				return winner, ferr
			}
		}
		return nil, fmt.Errorf("service/auth: linking %s to %s: %w", id.Provider, user.ID, err)
	}

	user.SetProviderID(id.Provider, id.ProviderID)
	s.logger.Info("provider linked to existing account",
		slog.String("userID", user.ID),
		slog.String("provider", string(id.Provider)),
	)
	return user, nil
}

// findByProvider and findByEmail fold NotFound into found=false so callers
// only see real failures as errors.
func (s *AuthService) findByProvider(ctx context.Context, id *model.OAuthIdentity) (*model.User, bool, error) {
	user, err := s.users.GetByProviderID(ctx, id.Provider, id.ProviderID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("service/auth: looking up %s id: %w", id.Provider, err)
	}
	return user, true, nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*model.User, bool, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	return user, true, nil
}

func oauthMethod(id *model.OAuthIdentity) string {
	if id != nil && id.Provider == model.ProviderGoogle {
		return metrics.MethodGoogle
	}
	return metrics.MethodGitHub
}
