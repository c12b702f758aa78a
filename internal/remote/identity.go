package remote

import (
	"context"
	"fmt"
	"net/http"
)

// Identity is the verified identity of the signed-in user.
type Identity struct {
	Handle    string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// IdentityClient fetches the authenticated user's identity from the identity
// provider's userinfo endpoint.
type IdentityClient struct {
	url  string
	http *http.Client
}

// NewIdentityClient builds a client for the userinfo endpoint.
func NewIdentityClient(userInfoURL string) *IdentityClient {
	return &IdentityClient{url: userInfoURL, http: http.DefaultClient}
}

// Fetch verifies token against the userinfo endpoint and returns the
// identity it proves. A 401 surfaces as ErrUnauthorized.
func (ic *IdentityClient) Fetch(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ic.url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: identity: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ic.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("identity: %w", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "identity", Status: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	var id Identity
	if err := decodeJSON(resp.Body, &id); err != nil {
		return nil, fmt.Errorf("remote: identity: %w", err)
	}
	if id.Handle == "" {
		return nil, fmt.Errorf("remote: identity: response missing login")
	}
	return &id, nil
}
