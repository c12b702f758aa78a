package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Project is one sketch project held by the persistence service.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	IsPublic bool   `json:"is_public"`
	RepoRef  string `json:"github_repo"`
}

// ProjectsClient talks to the project persistence service. Every call
// carries the current credential; a 401 surfaces as ErrUnauthorized so the
// session cascade can fire.
type ProjectsClient struct {
	c *Client
}

// NewProjectsClient builds a client for the persistence service at base,
// drawing credentials from token.
func NewProjectsClient(base string, token TokenFunc) *ProjectsClient {
	return &ProjectsClient{c: NewClient(base, token)}
}

// checkShape rejects responses missing the fields the orchestrator depends
// on, so half-formed records never propagate past the boundary.
func checkShape(op string, p *Project) error {
	if p.ID == "" {
		return fmt.Errorf("remote: %s: response missing project id", op)
	}
	if p.Name == "" {
		return fmt.Errorf("remote: %s: response missing project name", op)
	}
	return nil
}

// List fetches every project visible to the current credential.
func (pc *ProjectsClient) List(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := pc.c.doJSON(ctx, "projects.list", http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, err
	}
	for i := range projects {
		if err := checkShape("projects.list", &projects[i]); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// Get fetches one project by id.
func (pc *ProjectsClient) Get(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := pc.c.doJSON(ctx, "projects.get", http.MethodGet, "/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	if err := checkShape("projects.get", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// createRequest is the create body.
type createRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	IsPublic bool   `json:"is_public"`
}

// Create makes a new project; the service also provisions its source
// repository and reports it in RepoRef.
func (pc *ProjectsClient) Create(ctx context.Context, name, code string, isPublic bool) (*Project, error) {
	var p Project
	body := createRequest{Name: name, Code: code, IsPublic: isPublic}
	if err := pc.c.doJSON(ctx, "projects.create", http.MethodPost, "/projects", body, &p); err != nil {
		return nil, err
	}
	if err := checkShape("projects.create", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// updateRequest is the save body.
type updateRequest struct {
	Code string `json:"code"`
}

// Update saves new code for an existing project.
func (pc *ProjectsClient) Update(ctx context.Context, id, code string) (*Project, error) {
	var p Project
	if err := pc.c.doJSON(ctx, "projects.update", http.MethodPut, "/projects/"+url.PathEscape(id), updateRequest{Code: code}, &p); err != nil {
		return nil, err
	}
	if err := checkShape("projects.update", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a project from the persistence service.
func (pc *ProjectsClient) Delete(ctx context.Context, id string) error {
	return pc.c.doJSON(ctx, "projects.delete", http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}
