package handler_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/auth"
	"github.com/sakif/newsroom/internal/handler"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/repository/sqlite"
	"github.com/sakif/newsroom/internal/service"
)

// The handler tests run the real services on an in-memory SQLite database.
// Only the two outside collaborators, the news feed and the OAuth provider,
// are faked.

const testSecret = "handler-test-secret-0123456789"

// =========================================================================
// FAKES
// =========================================================================

// fakeFeed records what the pages asked for.
type fakeFeed struct {
	mu       sync.Mutex
	lastQ    string
	lastPage int
	fallback bool
}

func (f *fakeFeed) Feed(_ context.Context, page int) model.FeedPage {
	return f.Search(context.Background(), "", page)
}

func (f *fakeFeed) Search(_ context.Context, query string, page int) model.FeedPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQ = query
	f.lastPage = page
	if f.fallback {
		return model.FeedPage{Articles: service.FallbackArticles(), CurrentPage: 1, TotalPages: 1, Fallback: true}
	}
	return model.FeedPage{
		Articles:    []model.Article{{Title: "Go 1.25 released", URL: "https://go.dev/blog"}},
		Query:       query,
		CurrentPage: page,
		TotalPages:  3,
	}
}

// fakeProvider knows one code per identity.
type fakeProvider struct {
	name       model.Provider
	identities map[string]*model.OAuthIdentity
}

func (p *fakeProvider) Name() model.Provider { return p.name }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*model.OAuthIdentity, error) {
	id, ok := p.identities[code]
	if !ok {
		return nil, apperror.OAuthProvider(string(p.name), errors.New("bad code"))
	}
	return id, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// =========================================================================
// TEST APP
// =========================================================================

type testApp struct {
	router http.Handler
	feed   *fakeFeed
	states *auth.StateService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pages, err := handler.NewRenderer("../../web/templates", logger)
	require.NoError(t, err)

	states, err := auth.NewStateService(testSecret)
	require.NoError(t, err)

	accounts := service.NewAuthService(db.Users(), auth.NewPasswordServiceWithCost(bcrypt.MinCost), logger)
	sessions := auth.NewSessionManager(db.Sessions(), db.Users(), auth.SessionOptions{}, logger)
	github := &fakeProvider{
		name: model.ProviderGitHub,
		identities: map[string]*model.OAuthIdentity{
			"carol-code": {Provider: model.ProviderGitHub, ProviderID: "77", Username: "carol", DisplayName: "carol"},
		},
	}

	feed := &fakeFeed{}
	ah := handler.NewAuthHandler(handler.AuthHandlerOptions{
		Accounts:  accounts,
		Sessions:  sessions,
		States:    states,
		Providers: []auth.Provider{github},
		Pages:     pages,
	}, logger)
	fh := handler.NewFeedHandler(feed, pages, logger)

	r := chi.NewRouter()
	r.Use(auth.LoadSession(sessions, logger))
	r.Get("/login", ah.HandleLoginPage)
	r.Post("/login", ah.HandleLogin)
	r.Get("/register", ah.HandleRegisterPage)
	r.Post("/register", ah.HandleRegister)
	r.Get("/auth/{provider}", ah.HandleOAuthStart)
	r.Get("/auth/{provider}/callback", ah.HandleOAuthCallback)
	r.Get("/logout", ah.HandleLogout)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/", fh.HandleHome)
		r.Get("/news", fh.HandleNews)
		r.Get("/search", fh.HandleSearch)
	})

	return &testApp{router: r, feed: feed, states: states}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return a.do(req)
}

func (a *testApp) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *testApp) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

// register creates alice@x.com / s3cret through the JSON endpoint.
func (a *testApp) registerAlice(t *testing.T) {
	t.Helper()
	rec := a.postJSON("/register", `{"email":"alice@x.com","password":"s3cret"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// login posts the login form and returns the session cookie, if one was set.
func (a *testApp) login(email, password string) (*httptest.ResponseRecorder, *http.Cookie) {
	rec := a.postForm("/login", url.Values{"email": {email}, "password": {password}})
	return rec, cookieNamed(rec, auth.SessionCookieName)
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
