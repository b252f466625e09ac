package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/model"
)

// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. We redirect the browser to the provider with our ClientID, scopes and state.
// 2. The user approves on the provider's site.
// 3. The provider redirects back to our callback with a short-lived "code".
// 4. We exchange the code for an access token, server to server, with our
//    ClientSecret. The token never reaches the browser.
// 5. We call the provider's API with the token to learn who the user is.

// Provider is one OAuth identity provider.
type Provider interface {
	Name() model.Provider
	// AuthURL is where to send the browser to start the flow.
	AuthURL(state string) string
	// Exchange trades an authorization code for the user's identity.
	// Failures are apperror.ErrOAuthProvider.
	Exchange(ctx context.Context, code string) (*model.OAuthIdentity, error)
}

// ProviderConfig holds the credentials registered with a provider.
// CallbackURL must match the registered redirect URL exactly.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// =========================================================================
// GITHUB
// =========================================================================

const githubAPIBase = "https://api.github.com"

// githubUser is the part of GET /user we use.
// https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type githubUser struct {
	ID    int64  `json:"id"`    // stable, never changes
	Login string `json:"login"` // username, can change
	Name  string `json:"name"`
	Email string `json:"email"` // empty when the user keeps it private
}

// githubEmail is one entry of GET /user/emails.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider implements Provider for GitHub.
//
// Scopes:
//   - "read:user" for the profile (id, login)
//   - "user:email" so /user/emails works when the public email is hidden
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

func NewGitHubProvider(cfg ProviderConfig) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPIBase,
	}
}

func (p *GitHubProvider) Name() model.Provider { return model.ProviderGitHub }

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange returns the GitHub identity. The username is used as the display
// name. When the profile email is hidden, the primary verified address from
// /user/emails is used; if there is none, Email stays empty and the caller
// decides what to do.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*model.OAuthIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperror.OAuthProvider(string(model.ProviderGitHub), fmt.Errorf("exchanging code: %w", err))
	}
	client := p.config.Client(ctx, token)

	var u githubUser
	if err := getJSON(ctx, client, p.apiBase+"/user", &u); err != nil {
		return nil, apperror.OAuthProvider(string(model.ProviderGitHub), err)
	}
	if u.ID == 0 {
		return nil, apperror.OAuthProvider(string(model.ProviderGitHub), fmt.Errorf("GitHub returned an invalid user (ID = 0)"))
	}

	email := u.Email
	if email == "" {
		// Not fatal: the account may simply have no verified address.
		var emails []githubEmail
		if err := getJSON(ctx, client, p.apiBase+"/user/emails", &emails); err == nil {
			email = primaryVerified(emails)
		}
	}

	return &model.OAuthIdentity{
		Provider:    model.ProviderGitHub,
		ProviderID:  strconv.FormatInt(u.ID, 10),
		Email:       email,
		DisplayName: u.Login,
		Username:    u.Login,
	}, nil
}

func primaryVerified(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

// =========================================================================
// GOOGLE
// =========================================================================

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// googleUser is the OpenID Connect userinfo response.
type googleUser struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GoogleProvider implements Provider for Google with scopes openid, profile
// and email.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(cfg ProviderConfig) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) Name() model.Provider { return model.ProviderGoogle }

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*model.OAuthIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperror.OAuthProvider(string(model.ProviderGoogle), fmt.Errorf("exchanging code: %w", err))
	}

	var u googleUser
	if err := getJSON(ctx, p.config.Client(ctx, token), p.userInfoURL, &u); err != nil {
		return nil, apperror.OAuthProvider(string(model.ProviderGoogle), err)
	}
	if u.Sub == "" {
		return nil, apperror.OAuthProvider(string(model.ProviderGoogle), fmt.Errorf("userinfo has no subject"))
	}

	name := u.Name
	if name == "" {
		name = u.Email
	}

	return &model.OAuthIdentity{
		Provider:    model.ProviderGoogle,
		ProviderID:  u.Sub,
		Email:       u.Email,
		DisplayName: name,
	}, nil
}

// getJSON GETs url with the token-carrying client and decodes the body into v.
func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
