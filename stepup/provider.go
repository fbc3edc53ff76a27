package stepup

import "context"

// Token is an OAuth2 token response from the identity provider.
type Token struct {
	AccessToken string
	TokenType   string
	Scopes      []string
}

// Identity is the normalized external identity used for the step-up match.
type Identity struct {
	ID    int64
	Login string
	Name  string
}

// IdentityProvider drives the OAuth ceremony against an external provider:
// building the authorization URL, exchanging the callback code, and
// fetching the identity behind the resulting token.
type IdentityProvider interface {
	// Name returns the provider identifier (e.g. "github").
	Name() string

	// AuthCodeURL returns the authorization URL carrying state for CSRF
	// protection.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (*Token, error)

	// FetchIdentity resolves the identity behind an access token.
	FetchIdentity(ctx context.Context, token *Token) (*Identity, error)
}
