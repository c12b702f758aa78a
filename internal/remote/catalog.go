package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// CatalogKind selects which catalog a request addresses.
type CatalogKind string

const (
	KindBoard   CatalogKind = "board"
	KindLibrary CatalogKind = "library"
)

// CatalogItem is one board core or library from the catalog service.
type CatalogItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Installed   bool   `json:"installed"`
}

// CatalogClient talks to the board/library catalog service.
type CatalogClient struct {
	c *Client
}

// NewCatalogClient builds a client for the catalog service at base.
func NewCatalogClient(base string) *CatalogClient {
	return &CatalogClient{c: NewClient(base, nil)}
}

// catalogListEnvelope wraps list responses.
type catalogListEnvelope struct {
	Success bool          `json:"success"`
	Items   []CatalogItem `json:"items"`
	Error   string        `json:"error"`
}

// catalogActionEnvelope wraps install/uninstall responses.
type catalogActionEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// kindPath maps a kind to its route segment.
func kindPath(kind CatalogKind) (string, error) {
	switch kind {
	case KindBoard:
		return "/boards", nil
	case KindLibrary:
		return "/libraries", nil
	default:
		return "", fmt.Errorf("remote: catalog: unknown kind %q", kind)
	}
}

// Search queries the catalog for boards or libraries matching query.
func (cc *CatalogClient) Search(ctx context.Context, kind CatalogKind, query string) ([]CatalogItem, error) {
	base, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	var env catalogListEnvelope
	path := base + "/search?query=" + url.QueryEscape(query)
	if err := cc.c.doJSON(ctx, string(kind)+".search", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &RemoteError{Op: string(kind) + ".search", Detail: firstNonEmpty(env.Error, "search failed")}
	}
	return env.Items, nil
}

// ListInstalled returns the installed boards or libraries.
func (cc *CatalogClient) ListInstalled(ctx context.Context, kind CatalogKind) ([]CatalogItem, error) {
	base, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	var env catalogListEnvelope
	if err := cc.c.doJSON(ctx, string(kind)+".installed", http.MethodGet, base+"/installed", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &RemoteError{Op: string(kind) + ".installed", Detail: firstNonEmpty(env.Error, "list failed")}
	}
	return env.Items, nil
}

// Install asks the catalog service to install a board core or library.
// Returns the service's confirmation message.
func (cc *CatalogClient) Install(ctx context.Context, kind CatalogKind, id string) (string, error) {
	return cc.action(ctx, kind, id, "install")
}

// Uninstall asks the catalog service to remove a board core or library.
func (cc *CatalogClient) Uninstall(ctx context.Context, kind CatalogKind, id string) (string, error) {
	return cc.action(ctx, kind, id, "uninstall")
}

func (cc *CatalogClient) action(ctx context.Context, kind CatalogKind, id, verb string) (string, error) {
	base, err := kindPath(kind)
	if err != nil {
		return "", err
	}
	op := string(kind) + "." + verb
	var env catalogActionEnvelope
	body := map[string]string{"id": id}
	if err := cc.c.doJSON(ctx, op, http.MethodPost, base+"/"+verb, body, &env); err != nil {
		return "", err
	}
	if !env.Success {
		return "", &RemoteError{Op: op, Detail: firstNonEmpty(env.Error, verb+" failed")}
	}
	return env.Message, nil
}
