// Package catalog fronts the board core and library catalog service for
// the editor: search, the installed inventory, and install/uninstall.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/torvik/sketchbridge/internal/notify"
	"github.com/torvik/sketchbridge/internal/remote"
)

// Validation errors, raised locally before the service is contacted.
var (
	ErrEmptyQuery = errors.New("catalog: search query is required")
	ErrEmptyID    = errors.New("catalog: item id is required")
)

// Service is the remote catalog collaborator. remote.CatalogClient
// satisfies it.
type Service interface {
	Search(ctx context.Context, kind remote.CatalogKind, query string) ([]remote.CatalogItem, error)
	ListInstalled(ctx context.Context, kind remote.CatalogKind) ([]remote.CatalogItem, error)
	Install(ctx context.Context, kind remote.CatalogKind, id string) (string, error)
	Uninstall(ctx context.Context, kind remote.CatalogKind, id string) (string, error)
}

// Controller caches the installed inventory per kind so snapshot reads do
// not hit the service, and invalidates it after every install/uninstall.
type Controller struct {
	svc      Service
	notifier *notify.Notifier

	mu        sync.Mutex
	installed map[remote.CatalogKind][]remote.CatalogItem
}

// NewController creates a Controller. notifier may be nil.
func NewController(svc Service, notifier *notify.Notifier) *Controller {
	return &Controller{
		svc:       svc,
		notifier:  notifier,
		installed: make(map[remote.CatalogKind][]remote.CatalogItem),
	}
}

// Search queries the catalog. Results are never cached; the catalog is the
// source of truth for availability.
func (c *Controller) Search(ctx context.Context, kind remote.CatalogKind, query string) ([]remote.CatalogItem, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return c.svc.Search(ctx, kind, query)
}

// Installed returns the installed inventory for kind, fetching it on first
// use and after every install or uninstall.
func (c *Controller) Installed(ctx context.Context, kind remote.CatalogKind) ([]remote.CatalogItem, error) {
	c.mu.Lock()
	items, ok := c.installed[kind]
	c.mu.Unlock()
	if ok {
		return items, nil
	}

	items, err := c.svc.ListInstalled(ctx, kind)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.installed[kind] = items
	c.mu.Unlock()
	return items, nil
}

// Install installs a board core or library and returns the service's
// confirmation message.
func (c *Controller) Install(ctx context.Context, kind remote.CatalogKind, id string) (string, error) {
	return c.apply(ctx, kind, id, "install", c.svc.Install)
}

// Uninstall removes a board core or library.
func (c *Controller) Uninstall(ctx context.Context, kind remote.CatalogKind, id string) (string, error) {
	return c.apply(ctx, kind, id, "uninstall", c.svc.Uninstall)
}

func (c *Controller) apply(ctx context.Context, kind remote.CatalogKind, id, verb string, op func(context.Context, remote.CatalogKind, string) (string, error)) (string, error) {
	if id == "" {
		return "", ErrEmptyID
	}
	msg, err := op(ctx, kind, id)
	if err != nil {
		log.Printf("catalog: %s %s %s: %v", verb, kind, id, err)
		c.notifier.Publish(notify.Event{
			Title:    fmt.Sprintf("%s %s failed", kind, verb),
			Detail:   err.Error(),
			Severity: notify.SeverityError,
		})
		return "", err
	}

	c.mu.Lock()
	delete(c.installed, kind)
	c.mu.Unlock()

	log.Printf("catalog: %s %s %s", verb, kind, id)
	c.notifier.Publish(notify.Event{
		Title:    fmt.Sprintf("%s %sed: %s", kind, verb, id),
		Detail:   msg,
		Severity: notify.SeveritySuccess,
	})
	return msg, nil
}
