package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// OAUTH STATE AS A SIGNED TOKEN:
// Before redirecting to a provider we issue a short-lived HS256 JWT, put it in
// an HttpOnly cookie, and pass the same value as the OAuth "state" parameter.
// On callback the handler checks that the query and cookie agree, and Verify
// checks the signature, expiry and audience. A forged callback has neither the
// cookie nor a valid signature.
//
// The audience is the provider name, so a state minted for Google can't be
// replayed against the GitHub callback.

const (
	stateIssuer = "newsroom"
	stateTTL    = 10 * time.Minute
)

// StateService issues and verifies OAuth state tokens.
type StateService struct {
	secret []byte
	now    func() time.Time
}

// NewStateService requires a secret of at least 16 characters.
func NewStateService(secret string) (*StateService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &StateService{secret: []byte(secret), now: time.Now}, nil
}

// Issue returns a signed state token for the given provider.
// The jti claim is a fresh xid so two issued states never compare equal.
func (s *StateService) Issue(provider string) (string, error) {
	now := s.now()

	c := jwt.RegisteredClaims{
		ID:        xid.New().String(),
		Issuer:    stateIssuer,
		Audience:  jwt.ClaimStrings{provider},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing state: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, expiry and that the token was issued for
// provider. Only HS256 is accepted, which rules out "alg: none" tokens.
func (s *StateService) Verify(token, provider string) error {
	_, err := jwt.ParseWithClaims(
		token,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(provider),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("auth: state expired")
		}
		return fmt.Errorf("auth: invalid state: %w", err)
	}
	return nil
}
