package model

// OAuthIdentity is what a provider tells us about the person who just
// completed its login flow. It is consumed by identity reconciliation and
// never stored as-is.
type OAuthIdentity struct {
	Provider    Provider
	ProviderID  string // stable account id at the provider
	Email       string // may be empty (GitHub with a private email)
	DisplayName string
	Username    string // GitHub login; empty for Google
}
