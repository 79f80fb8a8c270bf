package gateway

import (
	"crypto/subtle"

	"cardchat/internal/domain"
	"cardchat/internal/infra/config"
)

// Authenticator resolves a bearer token to a user session.
type Authenticator interface {
	Authenticate(token string) (*domain.UserSession, error)
}

// StaticTokenAuth authenticates against a fixed token table from config.
// Comparison is constant-time per entry.
type StaticTokenAuth struct {
	tokens []config.TokenConfig
}

// NewStaticTokenAuth creates an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	return &StaticTokenAuth{tokens: tokens}
}

// Authenticate implements Authenticator.
func (a *StaticTokenAuth) Authenticate(token string) (*domain.UserSession, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	for _, t := range a.tokens {
		if len(t.Token) == len(token) &&
			subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1 {
			return &domain.UserSession{UserID: t.UserID, Name: t.Name}, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

var _ Authenticator = (*StaticTokenAuth)(nil)
