// Package model defines the data structures used throughout the application.
package model

import "time"

// Provider names an external OAuth identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// User represents an account. It is the only entity the application owns.
//
// An account can be reached through up to three identity paths: a local
// password (PasswordHash), a Google login (GoogleID) and a GitHub login
// (GitHubID). Any combination may be populated.
//
// WHY EMPTY STRINGS FOR ABSENT VALUES?
// The zero value is simpler to work with than a nullable pointer. The repositories convert "" to SQL NULL on the way in so
// the UNIQUE constraints on google_id and github_id only apply to accounts
// that actually have a provider linked.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"` // bcrypt; never serialised
	Name         string    `json:"name"      db:"name"`
	GoogleID     string    `json:"googleId,omitempty"  db:"google_id"`
	GitHubID     string    `json:"githubId,omitempty"  db:"github_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// HasPassword reports whether the account can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ProviderID returns the id linked for the given provider, or "".
func (u *User) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderGitHub:
		return u.GitHubID
	}
	return ""
}

// SetProviderID links a provider id onto the account.
func (u *User) SetProviderID(p Provider, id string) {
	switch p {
	case ProviderGoogle:
		u.GoogleID = id
	case ProviderGitHub:
		u.GitHubID = id
	}
}
