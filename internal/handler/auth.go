package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/auth"
	"github.com/sakif/newsroom/internal/metrics"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/service"
)

const (
	stateCookieName = "oauth_state"
	stateCookieAge  = 600 // seconds, matches the state token's own expiry
)

// Accounts is the part of service.AuthService the auth routes use.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	AuthenticateLocal(ctx context.Context, email, password string) (*model.User, error)
	AuthenticateOAuth(ctx context.Context, id *model.OAuthIdentity) (*model.User, error)
}

// AuthHandler serves login, registration, the OAuth flows and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLoginPage / HandleLogin        → local email + password login
//   - HandleRegisterPage / HandleRegister  → local sign-up (form or JSON)
//   - HandleOAuthStart / HandleOAuthCallback → /auth/{provider} code flow
//   - HandleLogout                          → end the session
//
// DEPENDENCY CHAIN:
//   - accounts  Accounts               → identity rules (service.AuthService)
//   - sessions  *auth.SessionManager   → session cookie + store
//   - states    *auth.StateService     → signed OAuth state
//   - providers map of auth.Provider   → only the configured ones
type AuthHandler struct {
	accounts  Accounts
	sessions  *auth.SessionManager
	states    *auth.StateService
	providers map[model.Provider]auth.Provider
	pages     *Renderer
	validator *Validator
	secure    bool
	logger    *slog.Logger
}

// AuthHandlerOptions groups the AuthHandler's collaborators.
type AuthHandlerOptions struct {
	Accounts  Accounts
	Sessions  *auth.SessionManager
	States    *auth.StateService
	Providers []auth.Provider
	Pages     *Renderer
	Validator *Validator
	Secure    bool // Secure attribute on the state cookie
}

func NewAuthHandler(opts AuthHandlerOptions, logger *slog.Logger) *AuthHandler {
	providers := make(map[model.Provider]auth.Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		providers[p.Name()] = p
	}
	v := opts.Validator
	if v == nil {
		v = NewValidator()
	}
	return &AuthHandler{
		accounts:  opts.Accounts,
		sessions:  opts.Sessions,
		states:    opts.States,
		providers: providers,
		pages:     opts.Pages,
		validator: v,
		secure:    opts.Secure,
		logger:    logger,
	}
}

// formData pre-fills a page with the OAuth buttons that are configured.
func (h *AuthHandler) formData(title string) PageData {
	_, google := h.providers[model.ProviderGoogle]
	_, github := h.providers[model.ProviderGitHub]
	return PageData{Title: title, GoogleEnabled: google, GitHubEnabled: github}
}

// =========================================================================
// LOCAL LOGIN
// =========================================================================

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLoginPage renders the login form.
//
// HTTP: GET /login
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, PageLogin, h.formData("Entrar"))
}

// HandleLogin checks the submitted email and password.
//
// HTTP: POST /login (form-encoded)
//
// Success establishes a session and sends the browser to "/". Any
// credential failure goes back to exactly "/login" with nothing that tells
// an unknown email apart from a wrong password.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Info("login: unreadable form", slog.String("error", err.Error()))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	req := loginRequest{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		metrics.RecordAuth(metrics.MethodLocal, metrics.OutcomeFailure)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	user, err := h.accounts.AuthenticateLocal(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidCredentials) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.logger.Error("login failed", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.establish(w, r, user)
}

// =========================================================================
// REGISTRATION
// =========================================================================

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name"     validate:"max=100"`
}

// HandleRegisterPage renders the sign-up form.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, PageRegister, h.formData("Cadastro"))
}

// HandleRegister creates a local account.
//
// HTTP: POST /register
//
// CONTENT NEGOTIATION:
// A JSON body or an Accept: application/json header gets a JSON Response:
//
//	201 {"success": true,  "message": "Cadastro realizado com sucesso!"}
//	409 {"success": false, "error": "duplicate_email", ...}
//	400 {"success": false, "error": "validation_error", "errors": {...}}
//	500 {"success": false, "error": "internal_error", ...}
//
// A plain form post is redirected to /login on success and gets the form
// re-rendered with a message (and the same status) on failure.
//
// Registering never logs the new user in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	asJSON := wantsJSON(r)

	req, err := h.decodeRegister(w, r)
	if err != nil {
		h.registerFailed(w, r, asJSON, req, apperror.ValidationFailed("body", "Formato de requisição inválido"), nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if err := h.validator.ValidateStruct(req); err != nil {
		h.registerFailed(w, r, asJSON, req, apperror.ValidationFailed("", msgInvalidInput), FormatValidationError(err))
		return
	}

	_, err = h.accounts.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrDuplicateEmail) && !errors.Is(err, apperror.ErrValidation) {
			h.logger.Error("registration failed", slog.String("error", err.Error()))
		}
		h.registerFailed(w, r, asJSON, req, err, nil)
		return
	}

	if asJSON {
		writeJSON(w, http.StatusCreated, Response{Success: true, Message: msgRegistered})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) decodeRegister(w http.ResponseWriter, r *http.Request) (registerRequest, error) {
	var req registerRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.PostFormValue("email")
	req.Password = r.PostFormValue("password")
	req.Name = r.PostFormValue("name")
	return req, nil
}

// registerFailed answers a rejected registration in the client's format.
func (h *AuthHandler) registerFailed(w http.ResponseWriter, r *http.Request, asJSON bool, req registerRequest, err error, fields map[string]string) {
	status, errorType, message := errorStatus(err)

	if asJSON {
		writeJSON(w, status, Response{
			Success: false,
			Error:   errorType,
			Message: message,
			Errors:  fields,
		})
		return
	}

	data := h.formData("Cadastro")
	data.Message = message
	data.Errors = fields
	data.Email = req.Email
	data.Name = req.Name
	h.pages.Render(w, r, status, PageRegister, data)
}

// =========================================================================
// OAUTH
// =========================================================================

// provider looks up the {provider} URL parameter. Unconfigured providers
// are not in the map, so their routes answer 404.
func (h *AuthHandler) provider(r *http.Request) (auth.Provider, bool) {
	p, ok := h.providers[model.Provider(chi.URLParam(r, "provider"))]
	return p, ok
}

// HandleOAuthStart sends the browser to the provider's consent page.
//
// HTTP: GET /auth/{provider}
//
// CSRF PROTECTION VIA STATE:
// The state is a signed, short-lived token bound to the provider. It goes
// both into the redirect URL and into an HttpOnly cookie; the callback
// requires the two to match and the signature to verify.
func (h *AuthHandler) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	state, err := h.states.Issue(string(p.Name()))
	if err != nil {
		h.logger.Error("oauth: issuing state failed", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes the provider's code flow.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Reject a provider-reported error (user denied)
//  2. Check the state cookie against the query and verify its signature
//  3. Exchange the code for the provider identity
//  4. Reconcile it onto an account
//  5. Establish a session and redirect to "/"
//
// Every failure before step 5 lands on "/login", except a storage failure
// which is a 500.
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	name := string(p.Name())
	q := r.URL.Query()

	// The state cookie is single-use whatever happens next.
	stateCookie, cookieErr := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := q.Get("error"); errParam != "" {
		h.oauthFailed(w, r, name, "provider_error", slog.String("error", errParam))
		return
	}

	// --- State check ---
	if cookieErr != nil || stateCookie.Value == "" {
		h.oauthFailed(w, r, name, "missing_state")
		return
	}
	if q.Get("state") != stateCookie.Value {
		h.oauthFailed(w, r, name, "state_mismatch")
		return
	}
	if err := h.states.Verify(stateCookie.Value, name); err != nil {
		h.oauthFailed(w, r, name, "invalid_state", slog.String("error", err.Error()))
		return
	}

	// --- Code exchange ---
	code := q.Get("code")
	if code == "" {
		h.oauthFailed(w, r, name, "missing_code")
		return
	}
	identity, err := p.Exchange(r.Context(), code)
	if err != nil {
		h.oauthFailed(w, r, name, "exchange_failed", slog.String("error", err.Error()))
		return
	}

	// --- Reconciliation ---
	user, err := h.accounts.AuthenticateOAuth(r.Context(), identity)
	if err != nil {
		if errors.Is(err, apperror.ErrStoreUnavailable) {
			h.logger.Error("oauth: reconciliation failed",
				slog.String("provider", name),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		h.logger.Warn("oauth: login refused",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.establish(w, r, user)
}

// oauthFailed handles failures that happen before the service is reached,
// which the service's own metrics never see.
func (h *AuthHandler) oauthFailed(w http.ResponseWriter, r *http.Request, provider, reason string, attrs ...any) {
	metrics.RecordAuth(provider, metrics.OutcomeFailure)
	attrs = append([]any{slog.String("provider", provider), slog.String("reason", reason)}, attrs...)
	h.logger.Info("oauth: callback rejected", attrs...)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// =========================================================================
// SESSION
// =========================================================================

// establish logs user in and sends the browser home.
func (h *AuthHandler) establish(w http.ResponseWriter, r *http.Request, user *model.User) {
	if _, err := h.sessions.Establish(r.Context(), w, r, user.ID); err != nil {
		h.logger.Error("establishing session failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout ends the session and clears the cookie.
//
// HTTP: GET /logout
//
// Logging out while anonymous is a no-op that still redirects. A store
// failure is only logged: the cookie is already gone from the browser.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Terminate(r.Context(), w, auth.TokenFromRequest(r)); err != nil {
		h.logger.Error("logout: deleting session failed", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
