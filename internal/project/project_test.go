package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torvik/sketchbridge/internal/models"
	"github.com/torvik/sketchbridge/internal/remote"
	"github.com/torvik/sketchbridge/internal/session"
)

// fakeService is a scriptable persistence collaborator.
type fakeService struct {
	mu            sync.Mutex
	projects      map[string]remote.Project
	nextID        int
	err           error
	updateRelease chan struct{} // when non-nil, Update blocks until closed

	listCalls   int
	updateCalls int
	deleteCalls int
}

func newFakeService(seed ...remote.Project) *fakeService {
	f := &fakeService{projects: make(map[string]remote.Project)}
	for _, p := range seed {
		f.projects[p.ID] = p
	}
	return f
}

func (f *fakeService) List(ctx context.Context) ([]remote.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	var out []remote.Project
	for _, p := range f.projects {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeService) Get(ctx context.Context, id string) (*remote.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, &remote.RemoteError{Op: "projects.get", Status: 404, Detail: "no such project"}
	}
	return &p, nil
}

func (f *fakeService) Create(ctx context.Context, name, code string, isPublic bool) (*remote.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	p := remote.Project{
		ID:       fmt.Sprintf("p%d", f.nextID),
		Name:     name,
		Code:     code,
		IsPublic: isPublic,
		RepoRef:  name,
	}
	f.projects[p.ID] = p
	return &p, nil
}

func (f *fakeService) Update(ctx context.Context, id, code string) (*remote.Project, error) {
	f.mu.Lock()
	f.updateCalls++
	release := f.updateRelease
	err := f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, &remote.RemoteError{Op: "projects.update", Status: 404, Detail: "no such project"}
	}
	p.Code = code
	f.projects[id] = p
	return &p, nil
}

func (f *fakeService) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.err != nil {
		return f.err
	}
	delete(f.projects, id)
	return nil
}

// fakeAuth is a controllable session slice.
type fakeAuth struct {
	mu     sync.Mutex
	authed bool
	noted  []error
}

func (f *fakeAuth) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeAuth) NoteAuthFailure(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noted = append(f.noted, err)
	if errors.Is(err, remote.ErrUnauthorized) {
		f.authed = false
		return true
	}
	return false
}

// fakeCache records durable cache traffic.
type fakeCache struct {
	mu      sync.Mutex
	rows    map[string]models.CachedProject
	cleared int
}

func newFakeCache() *fakeCache {
	return &fakeCache{rows: make(map[string]models.CachedProject)}
}

func (f *fakeCache) UpsertProject(p models.CachedProject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[p.ID] = p
	return nil
}

func (f *fakeCache) ListProjects() ([]models.CachedProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CachedProject
	for _, p := range f.rows {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCache) DeleteProject(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeCache) ClearProjects() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make(map[string]models.CachedProject)
	f.cleared++
	return nil
}

// fakeMirror records pushes.
type fakeMirror struct {
	mu     sync.Mutex
	pushes []string
}

func (f *fakeMirror) Push(ctx context.Context, repoRef, name, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, repoRef+":"+name)
	return nil
}

func TestSignedOut_OperationsRejectedWithoutServiceCalls(t *testing.T) {
	svc := newFakeService(remote.Project{ID: "p1", Name: "blinky"})
	auth := &fakeAuth{authed: false}
	c := NewController(svc, auth, nil, nil)

	if err := c.Refresh(context.Background()); !errors.Is(err, session.ErrNotSignedIn) {
		t.Errorf("Refresh signed out: err = %v, want ErrNotSignedIn", err)
	}
	if _, err := c.Create(context.Background(), "new", false); !errors.Is(err, session.ErrNotSignedIn) {
		t.Errorf("Create signed out: err = %v, want ErrNotSignedIn", err)
	}
	if _, err := c.Save(context.Background(), "p1", "code"); !errors.Is(err, session.ErrNotSignedIn) {
		t.Errorf("Save signed out: err = %v, want ErrNotSignedIn", err)
	}
	if err := c.Delete(context.Background(), "p1"); !errors.Is(err, session.ErrNotSignedIn) {
		t.Errorf("Delete signed out: err = %v, want ErrNotSignedIn", err)
	}
	if got := c.List(); len(got) != 0 {
		t.Errorf("List signed out = %v, want empty", got)
	}
	if svc.listCalls+svc.updateCalls+svc.deleteCalls != 0 {
		t.Error("persistence service contacted while signed out")
	}
}

func TestRefresh_PopulatesListAndCache(t *testing.T) {
	svc := newFakeService(
		remote.Project{ID: "p1", Name: "blinky", Code: "void loop(){}"},
		remote.Project{ID: "p2", Name: "servo", Code: "void loop(){}"},
	)
	cache := newFakeCache()
	c := NewController(svc, &fakeAuth{authed: true}, cache, nil)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := c.List(); len(got) != 2 {
		t.Errorf("List returned %d projects, want 2", len(got))
	}
	if len(cache.rows) != 2 {
		t.Errorf("cache holds %d rows, want 2", len(cache.rows))
	}
}

func TestCreate_SeedsDefaultSketch(t *testing.T) {
	svc := newFakeService()
	cache := newFakeCache()
	c := NewController(svc, &fakeAuth{authed: true}, cache, nil)

	if _, err := c.Create(context.Background(), "", false); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("Create with empty name: err = %v, want ErrEmptyName", err)
	}

	p, err := c.Create(context.Background(), "blinky", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.Contains(p.Code, "void setup()") || !strings.Contains(p.Code, "void loop()") {
		t.Errorf("new project code = %q, want default sketch scaffold", p.Code)
	}
	if cur := c.Current(); cur == nil || cur.ID != p.ID {
		t.Errorf("Current = %+v, want the created project", cur)
	}
	if _, ok := cache.rows[p.ID]; !ok {
		t.Error("created project not cached")
	}
}

func TestSave_UpdatesListCacheAndMirror(t *testing.T) {
	svc := newFakeService(remote.Project{ID: "p1", Name: "blinky", Code: "old", RepoRef: "blinky"})
	cache := newFakeCache()
	mirror := &fakeMirror{}
	c := NewController(svc, &fakeAuth{authed: true}, cache, mirror)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	p, err := c.Save(context.Background(), "p1", "new code")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p.Code != "new code" {
		t.Errorf("saved code = %q", p.Code)
	}
	if got := c.List()[0].Code; got != "new code" {
		t.Errorf("list copy code = %q, want refreshed", got)
	}
	if cache.rows["p1"].Code != "new code" {
		t.Errorf("cache row code = %q, want refreshed", cache.rows["p1"].Code)
	}
	if len(mirror.pushes) != 1 || mirror.pushes[0] != "blinky:blinky" {
		t.Errorf("mirror pushes = %v, want one push to blinky", mirror.pushes)
	}
}

func TestSave_OverlapForSameProjectRejected(t *testing.T) {
	svc := newFakeService(
		remote.Project{ID: "p1", Name: "blinky"},
		remote.Project{ID: "p2", Name: "servo"},
	)
	svc.updateRelease = make(chan struct{})
	c := NewController(svc, &fakeAuth{authed: true}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Save(context.Background(), "p1", "first")
		done <- err
	}()
	// Wait for the first save to claim its slot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		claimed := c.saving["p1"]
		c.mu.Unlock()
		if claimed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first save never claimed its slot")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.Save(context.Background(), "p1", "second"); !errors.Is(err, ErrSaveInFlight) {
		t.Errorf("overlapping save for same id: err = %v, want ErrSaveInFlight", err)
	}

	// A different project saves concurrently.
	otherDone := make(chan error, 1)
	go func() {
		_, err := c.Save(context.Background(), "p2", "other")
		otherDone <- err
	}()

	close(svc.updateRelease)
	if err := <-done; err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := <-otherDone; err != nil {
		t.Fatalf("save for different id: %v", err)
	}

	// Slot released; the same project saves again.
	if _, err := c.Save(context.Background(), "p1", "third"); err != nil {
		t.Fatalf("save after slot release: %v", err)
	}
}

func TestUnauthorized_ReportedToSession(t *testing.T) {
	svc := newFakeService(remote.Project{ID: "p1", Name: "blinky"})
	svc.err = fmt.Errorf("projects.update: %w", remote.ErrUnauthorized)
	auth := &fakeAuth{authed: true}
	c := NewController(svc, auth, nil, nil)

	if _, err := c.Save(context.Background(), "p1", "code"); !errors.Is(err, remote.ErrUnauthorized) {
		t.Fatalf("Save with rejected credential: err = %v, want ErrUnauthorized", err)
	}
	if len(auth.noted) != 1 || !errors.Is(auth.noted[0], remote.ErrUnauthorized) {
		t.Errorf("session noted %v, want the unauthorized error", auth.noted)
	}
	if auth.IsAuthenticated() {
		t.Error("session still authenticated after cascade")
	}
}

func TestDelete_RemovesEverywhere(t *testing.T) {
	svc := newFakeService(
		remote.Project{ID: "p1", Name: "blinky"},
		remote.Project{ID: "p2", Name: "servo"},
	)
	cache := newFakeCache()
	c := NewController(svc, &fakeAuth{authed: true}, cache, nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := c.Load(context.Background(), "p1"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := c.Delete(context.Background(), "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := c.List(); len(got) != 1 || got[0].ID != "p2" {
		t.Errorf("List after delete = %+v, want only p2", got)
	}
	if _, ok := cache.rows["p1"]; ok {
		t.Error("deleted project still cached")
	}
	if c.Current() != nil {
		t.Error("deleted project still selected")
	}
}

func TestReset_DropsEverything(t *testing.T) {
	svc := newFakeService(remote.Project{ID: "p1", Name: "blinky"})
	cache := newFakeCache()
	c := NewController(svc, &fakeAuth{authed: true}, cache, nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := c.Load(context.Background(), "p1"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c.Reset()

	if c.Current() != nil {
		t.Error("selection survived reset")
	}
	if len(cache.rows) != 0 || cache.cleared != 1 {
		t.Errorf("cache rows = %d cleared = %d, want 0 and 1", len(cache.rows), cache.cleared)
	}
	c.mu.Lock()
	n := len(c.projects)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("in-memory list has %d projects after reset, want 0", n)
	}
}
