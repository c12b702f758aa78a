package project

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v68/github"
)

// GitHubMirror pushes saved sketches to the project's GitHub repository as
// "<name>.ino". It satisfies Mirror.
type GitHubMirror struct {
	client *github.Client
	owner  string
}

// NewGitHubMirror builds a mirror authenticated with token, targeting
// repositories under owner. Returns nil when unconfigured so the caller can
// wire the absence of a mirror directly.
func NewGitHubMirror(token, owner string) *GitHubMirror {
	if token == "" || owner == "" {
		return nil
	}
	return &GitHubMirror{
		client: github.NewClient(nil).WithAuthToken(token),
		owner:  owner,
	}
}

// Push writes code as "<name>.ino" at the head of repoRef, creating the
// file on first save and updating it afterwards. repoRef may be bare
// ("blinky") or owner-qualified ("someone/blinky").
func (g *GitHubMirror) Push(ctx context.Context, repoRef, name, code string) error {
	owner, repo := g.owner, repoRef
	if before, after, found := strings.Cut(repoRef, "/"); found {
		owner, repo = before, after
	}
	path := name + ".ino"

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr("Update Arduino sketch"),
		Content: []byte(code),
	}

	existing, _, resp, err := g.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	switch {
	case err == nil && existing != nil:
		opts.SHA = existing.SHA
		_, _, err = g.client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		opts.Message = github.Ptr("Initial Arduino sketch")
		_, _, err = g.client.Repositories.CreateFile(ctx, owner, repo, path, opts)
	default:
		return fmt.Errorf("project: mirror lookup %s/%s: %w", owner, repo, err)
	}
	if err != nil {
		return fmt.Errorf("project: mirror write %s/%s: %w", owner, repo, err)
	}
	return nil
}
