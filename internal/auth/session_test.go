package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeSessions is an in-memory SessionRepository.
type fakeSessions struct {
	mu      sync.Mutex
	rows    map[string]model.Session
	failGet bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: make(map[string]model.Session)}
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[s.ID] = *s
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, apperror.StoreUnavailable("looking up session", errors.New("connection refused"))
	}
	s, ok := f.rows[id]
	if !ok {
		return nil, apperror.NotFound("session", "(redacted)")
	}
	return &s, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if s.Expired(now) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeUsers only needs GetByID for session resolution.
type fakeUsers struct {
	byID map[string]*model.User
}

func (f *fakeUsers) Create(context.Context, *model.User) error { return nil }

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUsers) GetByProviderID(_ context.Context, _ model.Provider, id string) (*model.User, error) {
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUsers) LinkProvider(context.Context, string, model.Provider, string) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type sessionFixture struct {
	manager  *SessionManager
	sessions *fakeSessions
	alice    *model.User
	clock    time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	alice := &model.User{ID: "u-alice", Email: "alice@x.com", Name: "alice@x.com"}
	f := &sessionFixture{
		sessions: newFakeSessions(),
		alice:    alice,
		clock:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	users := &fakeUsers{byID: map[string]*model.User{alice.ID: alice}}
	f.manager = NewSessionManager(f.sessions, users, SessionOptions{}, testLogger())
	f.manager.now = func() time.Time { return f.clock }
	return f
}

// establish runs Establish against a fresh request and returns the token and
// the cookie that was set.
func (f *sessionFixture) establish(t *testing.T, r *http.Request) (string, *http.Cookie) {
	t.Helper()
	if r == nil {
		r = httptest.NewRequest(http.MethodPost, "/login", nil)
	}
	rec := httptest.NewRecorder()
	token, err := f.manager.Establish(context.Background(), rec, r, f.alice.ID)
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Establish() set %d cookies, want 1", len(cookies))
	}
	return token, cookies[0]
}

// =========================================================================
// ESTABLISH
// =========================================================================

func TestEstablish_SetsCookie(t *testing.T) {
	f := newSessionFixture(t)

	token, c := f.establish(t, nil)

	if c.Name != SessionCookieName {
		t.Errorf("cookie name = %q, want %q", c.Name, SessionCookieName)
	}
	if c.Value != token {
		t.Errorf("cookie value = %q, want the returned token", c.Value)
	}
	if !c.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.MaxAge != int((14 * 24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want 14 days", c.MaxAge)
	}
	if c.Path != "/" {
		t.Errorf("Path = %q, want /", c.Path)
	}
}

func TestEstablish_StoresDigestNotToken(t *testing.T) {
	f := newSessionFixture(t)

	token, _ := f.establish(t, nil)

	if _, err := f.sessions.Get(context.Background(), token); err == nil {
		t.Error("the raw token must not be a store key")
	}
	if _, err := f.sessions.Get(context.Background(), digest(token)); err != nil {
		t.Errorf("session not stored under its digest: %v", err)
	}
}

func TestEstablish_TokensAreUnique(t *testing.T) {
	f := newSessionFixture(t)

	a, _ := f.establish(t, nil)
	b, _ := f.establish(t, nil)
	if a == b {
		t.Error("Establish() issued the same token twice")
	}
	if len(a) < 43 {
		t.Errorf("token %q is shorter than 32 bytes of entropy", a)
	}
}

func TestEstablish_ReplacesExistingSession(t *testing.T) {
	f := newSessionFixture(t)
	old, oldCookie := f.establish(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.AddCookie(oldCookie)
	f.establish(t, r)

	user, err := f.manager.Resolve(context.Background(), old)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if user != nil {
		t.Error("the previous session should no longer resolve")
	}
	if f.sessions.count() != 1 {
		t.Errorf("store holds %d sessions, want 1", f.sessions.count())
	}
}

// =========================================================================
// RESOLVE
// =========================================================================

func TestResolve_SameTokenTwice(t *testing.T) {
	f := newSessionFixture(t)
	token, _ := f.establish(t, nil)

	for i := range 2 {
		user, err := f.manager.Resolve(context.Background(), token)
		if err != nil {
			t.Fatalf("Resolve() #%d error = %v", i, err)
		}
		if user == nil || user.ID != f.alice.ID {
			t.Fatalf("Resolve() #%d = %v, want alice", i, user)
		}
	}
	if f.sessions.count() != 1 {
		t.Errorf("Resolve() changed the store: %d sessions", f.sessions.count())
	}
}

func TestResolve_Anonymous(t *testing.T) {
	f := newSessionFixture(t)

	for _, token := range []string{"", "never-issued"} {
		user, err := f.manager.Resolve(context.Background(), token)
		if err != nil || user != nil {
			t.Errorf("Resolve(%q) = (%v, %v), want (nil, nil)", token, user, err)
		}
	}
}

func TestResolve_ExpiredIsAnonymousAndDeleted(t *testing.T) {
	f := newSessionFixture(t)
	token, _ := f.establish(t, nil)

	f.clock = f.clock.Add(DefaultSessionTTL)

	user, err := f.manager.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if user != nil {
		t.Error("an expired session must resolve anonymous")
	}
	if f.sessions.count() != 0 {
		t.Error("the expired session should have been deleted")
	}
}

func TestResolve_JustBeforeExpiry(t *testing.T) {
	f := newSessionFixture(t)
	token, _ := f.establish(t, nil)

	f.clock = f.clock.Add(DefaultSessionTTL - time.Second)

	user, _ := f.manager.Resolve(context.Background(), token)
	if user == nil {
		t.Error("session should still be valid one second before expiry")
	}
}

func TestResolve_UserGone(t *testing.T) {
	f := newSessionFixture(t)
	rec := httptest.NewRecorder()
	token, err := f.manager.Establish(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), "u-deleted")
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}

	user, err := f.manager.Resolve(context.Background(), token)
	if err != nil || user != nil {
		t.Errorf("Resolve() = (%v, %v), want (nil, nil)", user, err)
	}
}

func TestResolve_StoreFailure(t *testing.T) {
	f := newSessionFixture(t)
	token, _ := f.establish(t, nil)
	f.sessions.failGet = true

	_, err := f.manager.Resolve(context.Background(), token)
	if !errors.Is(err, apperror.ErrStoreUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrStoreUnavailable", err)
	}
}

// =========================================================================
// TERMINATE / PURGE
// =========================================================================

func TestTerminate(t *testing.T) {
	f := newSessionFixture(t)
	token, _ := f.establish(t, nil)

	rec := httptest.NewRecorder()
	if err := f.manager.Terminate(context.Background(), rec, token); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("Terminate() should expire the cookie, got %+v", cookies)
	}

	user, _ := f.manager.Resolve(context.Background(), token)
	if user != nil {
		t.Error("a terminated session must not resolve")
	}

	// Logging out again (or while anonymous) is harmless.
	if err := f.manager.Terminate(context.Background(), httptest.NewRecorder(), token); err != nil {
		t.Errorf("second Terminate() error = %v", err)
	}
	if err := f.manager.Terminate(context.Background(), httptest.NewRecorder(), ""); err != nil {
		t.Errorf("Terminate(\"\") error = %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	f := newSessionFixture(t)
	f.establish(t, nil)
	f.clock = f.clock.Add(DefaultSessionTTL / 2)
	f.establish(t, nil)

	// Only the first session is past its expiry now.
	f.clock = f.clock.Add(DefaultSessionTTL/2 + time.Minute)

	n, err := f.manager.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
	if f.sessions.count() != 1 {
		t.Errorf("%d sessions left, want 1", f.sessions.count())
	}
}
