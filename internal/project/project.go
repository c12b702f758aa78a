// Package project keeps the user's sketch projects in sync with the
// persistence service. Every operation is gated on the session; an
// authorization failure from the service cascades into a full sign-out,
// which in turn drops the local cache.
package project

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/torvik/sketchbridge/internal/models"
	"github.com/torvik/sketchbridge/internal/remote"
	"github.com/torvik/sketchbridge/internal/session"
)

// DefaultSketch seeds new projects so the editor never opens on an empty
// buffer.
const DefaultSketch = `void setup() {
  // put your setup code here, to run once:

}

void loop() {
  // put your main code here, to run repeatedly:

}
`

// Validation errors, raised locally before the service is contacted.
var (
	ErrEmptyName    = errors.New("project: project name is required")
	ErrSaveInFlight = errors.New("project: a save for this project is already in flight")
)

// Service is the remote persistence collaborator. remote.ProjectsClient
// satisfies it.
type Service interface {
	List(ctx context.Context) ([]remote.Project, error)
	Get(ctx context.Context, id string) (*remote.Project, error)
	Create(ctx context.Context, name, code string, isPublic bool) (*remote.Project, error)
	Update(ctx context.Context, id, code string) (*remote.Project, error)
	Delete(ctx context.Context, id string) error
}

// Auth is the slice of the session the controller depends on.
type Auth interface {
	IsAuthenticated() bool
	NoteAuthFailure(err error) bool
}

// Cache is the durable project cache. The local sqlite store satisfies it.
type Cache interface {
	UpsertProject(p models.CachedProject) error
	ListProjects() ([]models.CachedProject, error)
	DeleteProject(id string) error
	ClearProjects() error
}

// Mirror pushes saved sketches to the project's source repository.
// Delivery is best effort; a mirror failure never fails the save.
type Mirror interface {
	Push(ctx context.Context, repoRef, name, code string) error
}

// Controller is the Project Sync Controller.
type Controller struct {
	svc    Service
	auth   Auth
	cache  Cache
	mirror Mirror

	mu       sync.Mutex
	projects []remote.Project
	current  *remote.Project
	saving   map[string]bool
}

// NewController creates a Controller. cache and mirror may be nil.
func NewController(svc Service, auth Auth, cache Cache, mirror Mirror) *Controller {
	return &Controller{
		svc:    svc,
		auth:   auth,
		cache:  cache,
		mirror: mirror,
		saving: make(map[string]bool),
	}
}

// Refresh fetches the project list from the persistence service and
// refreshes the durable cache. Requires an authenticated session.
func (c *Controller) Refresh(ctx context.Context) error {
	if !c.auth.IsAuthenticated() {
		return session.ErrNotSignedIn
	}
	projects, err := c.svc.List(ctx)
	if err != nil {
		c.auth.NoteAuthFailure(err)
		return err
	}

	c.mu.Lock()
	c.projects = projects
	c.mu.Unlock()

	for _, p := range projects {
		c.cacheUpsert(p)
	}
	log.Printf("project: refreshed %d projects", len(projects))
	return nil
}

// List returns the in-memory project list. Empty, not an error, when the
// session is signed out.
func (c *Controller) List() []remote.Project {
	if !c.auth.IsAuthenticated() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]remote.Project, len(c.projects))
	copy(out, c.projects)
	return out
}

// Cached returns the durable project cache, usable while offline or signed
// out for read-only display.
func (c *Controller) Cached() ([]models.CachedProject, error) {
	if c.cache == nil {
		return nil, nil
	}
	return c.cache.ListProjects()
}

// Load fetches one project and makes it current.
func (c *Controller) Load(ctx context.Context, id string) (*remote.Project, error) {
	if !c.auth.IsAuthenticated() {
		return nil, session.ErrNotSignedIn
	}
	p, err := c.svc.Get(ctx, id)
	if err != nil {
		c.auth.NoteAuthFailure(err)
		return nil, err
	}

	c.mu.Lock()
	c.current = p
	c.mu.Unlock()
	c.cacheUpsert(*p)
	return p, nil
}

// Create makes a new project seeded with the default sketch, makes it
// current, and records it in the list and cache.
func (c *Controller) Create(ctx context.Context, name string, isPublic bool) (*remote.Project, error) {
	if !c.auth.IsAuthenticated() {
		return nil, session.ErrNotSignedIn
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	p, err := c.svc.Create(ctx, name, DefaultSketch, isPublic)
	if err != nil {
		c.auth.NoteAuthFailure(err)
		return nil, err
	}

	c.mu.Lock()
	c.projects = append(c.projects, *p)
	c.current = p
	c.mu.Unlock()
	c.cacheUpsert(*p)
	log.Printf("project: created %q [id=%s]", p.Name, p.ID)
	return p, nil
}

// Save persists new code for the project. At most one save per project id
// is in flight; an overlapping save for the same id is rejected with
// ErrSaveInFlight while saves for other ids proceed. The saved sketch is
// mirrored to the project's source repository best effort.
func (c *Controller) Save(ctx context.Context, id, code string) (*remote.Project, error) {
	if !c.auth.IsAuthenticated() {
		return nil, session.ErrNotSignedIn
	}

	c.mu.Lock()
	if c.saving[id] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSaveInFlight, id)
	}
	c.saving[id] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.saving, id)
		c.mu.Unlock()
	}()

	p, err := c.svc.Update(ctx, id, code)
	if err != nil {
		c.auth.NoteAuthFailure(err)
		return nil, err
	}

	c.mu.Lock()
	c.replaceLocked(*p)
	c.mu.Unlock()
	c.cacheUpsert(*p)

	if c.mirror != nil && p.RepoRef != "" {
		if err := c.mirror.Push(ctx, p.RepoRef, p.Name, p.Code); err != nil {
			log.Printf("project: mirror push %s: %v", p.RepoRef, err)
		}
	}
	return p, nil
}

// Delete removes the project from the persistence service, the in-memory
// list, and the cache. Deleting the current project clears the selection.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if !c.auth.IsAuthenticated() {
		return session.ErrNotSignedIn
	}
	if err := c.svc.Delete(ctx, id); err != nil {
		c.auth.NoteAuthFailure(err)
		return err
	}

	c.mu.Lock()
	kept := c.projects[:0]
	for _, p := range c.projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	c.projects = kept
	if c.current != nil && c.current.ID == id {
		c.current = nil
	}
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.DeleteProject(id); err != nil {
			log.Printf("project: %v", err)
		}
	}
	log.Printf("project: deleted [id=%s]", id)
	return nil
}

// Current returns the selected project, or nil.
func (c *Controller) Current() *remote.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	p := *c.current
	return &p
}

// Reset drops the in-memory list, the selection, and the durable cache.
// Wired to session sign-out so no project data survives the credential.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.projects = nil
	c.current = nil
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.ClearProjects(); err != nil {
			log.Printf("project: %v", err)
		}
	}
}

// replaceLocked swaps the stored copy of p in list and selection. Caller
// holds the lock.
func (c *Controller) replaceLocked(p remote.Project) {
	for i := range c.projects {
		if c.projects[i].ID == p.ID {
			c.projects[i] = p
		}
	}
	if c.current != nil && c.current.ID == p.ID {
		c.current = &p
	}
}

// cacheUpsert refreshes one durable cache row, logging failures.
func (c *Controller) cacheUpsert(p remote.Project) {
	if c.cache == nil {
		return
	}
	row := models.CachedProject{
		ID:       p.ID,
		Name:     p.Name,
		Code:     p.Code,
		IsPublic: p.IsPublic,
		RepoRef:  p.RepoRef,
	}
	if err := c.cache.UpsertProject(row); err != nil {
		log.Printf("project: %v", err)
	}
}
