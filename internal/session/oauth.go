package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/torvik/sketchbridge/internal/config"
	"github.com/torvik/sketchbridge/internal/remote"
)

// OAuthAuthorizer implements Authorizer over the standard authorization-code
// flow.
type OAuthAuthorizer struct {
	cfg *oauth2.Config
}

// NewOAuthAuthorizer builds an authorizer from the auth config. Returns nil
// when no provider is configured; sign-in is then unavailable but the rest
// of the bridge still works.
func NewOAuthAuthorizer(ac config.AuthConfig) *OAuthAuthorizer {
	if ac.ClientID == "" || ac.AuthURL == "" || ac.TokenURL == "" {
		return nil
	}
	return &OAuthAuthorizer{
		cfg: &oauth2.Config{
			ClientID:     ac.ClientID,
			ClientSecret: ac.ClientSecret,
			RedirectURL:  ac.RedirectURL,
			Scopes:       ac.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  ac.AuthURL,
				TokenURL: ac.TokenURL,
			},
		},
	}
}

// AuthURL returns the provider authorization URL carrying state.
func (a *OAuthAuthorizer) AuthURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange redeems the authorization code for an access token. A provider
// rejection is mapped to the authorization-failure class.
func (a *OAuthAuthorizer) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			(retrieveErr.Response.StatusCode == http.StatusUnauthorized || retrieveErr.Response.StatusCode == http.StatusBadRequest) {
			return "", fmt.Errorf("exchange: %w", remote.ErrUnauthorized)
		}
		return "", fmt.Errorf("exchange: %w", err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", fmt.Errorf("exchange: provider returned empty token")
	}
	return tok.AccessToken, nil
}
