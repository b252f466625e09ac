package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/metrics"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/repository"
)

// SESSIONS:
// A session token is 32 random bytes, base64url encoded, and lives only in
// the browser's HttpOnly cookie. The store keys the session by the hex
// SHA-256 of the token. Resolving a token means: hash it, load the row,
// check expiry, load the user.

const (
	// DefaultSessionTTL is how long a login lasts.
	DefaultSessionTTL = 14 * 24 * time.Hour

	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "sid"

	tokenBytes = 32
)

// SessionOptions tunes the session cookie.
type SessionOptions struct {
	TTL    time.Duration // defaults to DefaultSessionTTL
	Secure bool          // set the Secure attribute (HTTPS deployments)
}

// SessionManager creates, resolves and terminates sessions.
type SessionManager struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	ttl      time.Duration
	secure   bool
	logger   *slog.Logger
	now      func() time.Time
}

func NewSessionManager(sessions repository.SessionRepository, users repository.UserRepository, opts SessionOptions, logger *slog.Logger) *SessionManager {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		secure:   opts.Secure,
		logger:   logger,
		now:      time.Now,
	}
}

// Establish starts a session for userID and sets the cookie on w.
//
// If r already carries a session cookie, that session is terminated first so
// a token planted before login is never promoted to an authenticated one.
// Returns the raw token.
func (m *SessionManager) Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) (string, error) {
	if old := TokenFromRequest(r); old != "" {
		if err := m.sessions.Delete(ctx, digest(old)); err != nil {
			m.logger.Warn("failed to drop previous session", slog.String("error", err.Error()))
		}
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	session := &model.Session{
		ID:        digest(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("auth: establishing session: %w", err)
	}

	http.SetCookie(w, m.cookie(token, int(m.ttl.Seconds())))
	metrics.SessionsEstablished.Inc()
	return token, nil
}

// Resolve returns the user a token belongs to.
//
// An empty, unknown or expired token, or one whose user no longer exists,
// resolves to (nil, nil): the caller is simply anonymous. Expired and
// orphaned sessions are deleted on the way. Only store failures return an
// error.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	id := digest(token)

	session, err := m.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("auth: resolving session: %w", err)
	}

	if session.Expired(m.now()) {
		m.drop(ctx, id)
		return nil, nil
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			m.drop(ctx, id)
			return nil, nil
		}
		return nil, fmt.Errorf("auth: loading session user: %w", err)
	}
	return user, nil
}

// Terminate deletes the session (if any) and expires the cookie.
// The cookie is cleared even when the store delete fails.
func (m *SessionManager) Terminate(ctx context.Context, w http.ResponseWriter, token string) error {
	http.SetCookie(w, m.cookie("", -1))
	if token == "" {
		return nil
	}
	if err := m.sessions.Delete(ctx, digest(token)); err != nil {
		return fmt.Errorf("auth: terminating session: %w", err)
	}
	return nil
}

// PurgeExpired removes sessions past their expiry. Run periodically.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("auth: purging sessions: %w", err)
	}
	return n, nil
}

// TokenFromRequest returns the session token from the cookie, or "".
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (m *SessionManager) drop(ctx context.Context, id string) {
	if err := m.sessions.Delete(ctx, id); err != nil {
		m.logger.Warn("failed to delete stale session", slog.String("error", err.Error()))
	}
}

func (m *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
