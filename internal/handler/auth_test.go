package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/newsroom/internal/auth"
	"github.com/sakif/newsroom/internal/handler"
)

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister_JSON(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantField  string
	}{
		{
			name:       "created",
			body:       `{"email":"alice@x.com","password":"s3cret","name":"Alice"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate email",
			body:       `{"email":"ALICE@x.com","password":"other"}`,
			wantStatus: http.StatusConflict,
			wantError:  "duplicate_email",
		},
		{
			name:       "invalid email",
			body:       `{"email":"not-an-email","password":"s3cret"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
			wantField:  "email",
		},
		{
			name:       "missing password",
			body:       `{"email":"bob@x.com"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
			wantField:  "password",
		},
		{
			name:       "malformed body",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
	}

	// Cases run in order: "duplicate email" depends on "created".
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.postJSON("/register", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

			var resp handler.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus == http.StatusCreated, resp.Success)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.NotEmpty(t, resp.Message)
			if tt.wantField != "" {
				assert.Contains(t, resp.Errors, tt.wantField)
			}
		})
	}
}

func TestRegister_DoesNotLogIn(t *testing.T) {
	app := newTestApp(t)

	rec := app.postJSON("/register", `{"email":"alice@x.com","password":"s3cret"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, cookieNamed(rec, auth.SessionCookieName))
}

func TestRegister_Form(t *testing.T) {
	app := newTestApp(t)
	form := url.Values{"email": {"alice@x.com"}, "password": {"s3cret"}, "name": {"Alice"}}

	rec := app.postForm("/register", form)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	// Second time round the form comes back with the message and the email
	// filled in.
	rec = app.postForm("/register", form)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Email já está em uso.")
	assert.Contains(t, rec.Body.String(), `value="alice@x.com"`)
}

func TestRegister_FormValidation(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm("/register", url.Values{"email": {"nope"}, "password": {strings.Repeat("p", 80)}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email inválido")
	assert.Contains(t, rec.Body.String(), "Máximo de 72 caracteres")
}

func TestRegister_AcceptHeaderSelectsJSON(t *testing.T) {
	app := newTestApp(t)

	req := newFormRequest("/register", url.Values{"email": {"alice@x.com"}, "password": {"s3cret"}})
	req.Header.Set("Accept", "application/json")
	rec := app.do(req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Cadastro realizado com sucesso!"}`, rec.Body.String())
}

// =========================================================================
// LOCAL LOGIN
// =========================================================================

func TestLogin_Success(t *testing.T) {
	app := newTestApp(t)
	app.registerAlice(t)

	rec, cookie := app.login("alice@x.com", "s3cret")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	require.NotNil(t, cookie, "login should set the session cookie")
	assert.True(t, cookie.HttpOnly)

	home := app.get("/", cookie)
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), "alice@x.com")
}

// Unknown email and wrong password must look exactly the same.
func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	app := newTestApp(t)
	app.registerAlice(t)

	tests := []struct {
		name            string
		email, password string
	}{
		{"wrong password", "alice@x.com", "wrong"},
		{"unknown email", "nobody@x.com", "s3cret"},
		{"empty password", "alice@x.com", ""},
		{"empty email", "", "s3cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, cookie := app.login(tt.email, tt.password)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/login", rec.Header().Get("Location"))
			assert.Nil(t, cookie)
		})
	}
}

func TestLoginPage_ShowsConfiguredProvidersOnly(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/login")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/login"`)
	assert.Contains(t, rec.Body.String(), `href="/auth/github"`)
	assert.NotContains(t, rec.Body.String(), `href="/auth/google"`)
}

// =========================================================================
// OAUTH
// =========================================================================

func TestOAuthStart(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/auth/github")

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	state := cookieNamed(rec, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider.test", loc.Host)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func TestOAuth_UnconfiguredProviderIsNotFound(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusNotFound, app.get("/auth/google").Code)
	assert.Equal(t, http.StatusNotFound, app.get("/auth/google/callback?code=x").Code)
	assert.Equal(t, http.StatusNotFound, app.get("/auth/twitter").Code)
}

func TestOAuthCallback_Success(t *testing.T) {
	app := newTestApp(t)
	state := cookieNamed(app.get("/auth/github"), "oauth_state")
	require.NotNil(t, state)

	rec := app.get("/auth/github/callback?code=carol-code&state="+url.QueryEscape(state.Value), state)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	session := cookieNamed(rec, auth.SessionCookieName)
	require.NotNil(t, session)

	// carol has no public email; the account is keyed on carol@github.com.
	home := app.get("/", session)
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), "carol")
}

func TestOAuthCallback_Failures(t *testing.T) {
	app := newTestApp(t)

	issue := func(t *testing.T) *http.Cookie {
		t.Helper()
		c := cookieNamed(app.get("/auth/github"), "oauth_state")
		require.NotNil(t, c)
		return c
	}

	otherSecret, err := auth.NewStateService("a-completely-different-secret")
	require.NoError(t, err)
	forged, err := otherSecret.Issue("github")
	require.NoError(t, err)

	googleState, err := app.states.Issue("google")
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func(t *testing.T) (query string, cookie *http.Cookie)
	}{
		{"user denied", func(t *testing.T) (string, *http.Cookie) {
			c := issue(t)
			return "error=access_denied&state=" + url.QueryEscape(c.Value), c
		}},
		{"missing state cookie", func(t *testing.T) (string, *http.Cookie) {
			c := issue(t)
			return "code=carol-code&state=" + url.QueryEscape(c.Value), nil
		}},
		{"state mismatch", func(t *testing.T) (string, *http.Cookie) {
			return "code=carol-code&state=something-else", issue(t)
		}},
		{"forged state", func(t *testing.T) (string, *http.Cookie) {
			return "code=carol-code&state=" + url.QueryEscape(forged),
				&http.Cookie{Name: "oauth_state", Value: forged}
		}},
		{"state issued for another provider", func(t *testing.T) (string, *http.Cookie) {
			return "code=carol-code&state=" + url.QueryEscape(googleState),
				&http.Cookie{Name: "oauth_state", Value: googleState}
		}},
		{"missing code", func(t *testing.T) (string, *http.Cookie) {
			c := issue(t)
			return "state=" + url.QueryEscape(c.Value), c
		}},
		{"exchange fails", func(t *testing.T) (string, *http.Cookie) {
			c := issue(t)
			return "code=bad-code&state=" + url.QueryEscape(c.Value), c
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, cookie := tt.build(t)
			var cookies []*http.Cookie
			if cookie != nil {
				cookies = append(cookies, cookie)
			}

			rec := app.get("/auth/github/callback?"+query, cookies...)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/login", rec.Header().Get("Location"))
			assert.Nil(t, cookieNamed(rec, auth.SessionCookieName))

			cleared := cookieNamed(rec, "oauth_state")
			require.NotNil(t, cleared, "the state cookie is single-use")
			assert.Less(t, cleared.MaxAge, 0)
		})
	}
}

// =========================================================================
// LOGOUT
// =========================================================================

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.registerAlice(t)
	_, session := app.login("alice@x.com", "s3cret")
	require.NotNil(t, session)

	rec := app.get("/logout", session)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cleared := cookieNamed(rec, auth.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	// The old cookie no longer opens the feed.
	after := app.get("/", session)
	assert.Equal(t, http.StatusSeeOther, after.Code)
	assert.Equal(t, "/login", after.Header().Get("Location"))
}

func TestLogout_Anonymous(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/logout")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func newFormRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
