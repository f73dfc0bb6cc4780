package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/http"
)

// GitCloner checks out repositories at a commit, for building images from a
// pushed revision instead of the local tree.
type GitCloner struct {
	log      logr.Logger
	auth     transport.AuthMethod
	cloneDir string
}

// NewGitCloner clones below cloneDir. token is a GitHub installation token;
// empty for public repositories.
func NewGitCloner(log logr.Logger, token, cloneDir string) *GitCloner {
	c := &GitCloner{
		log:      log,
		cloneDir: cloneDir,
	}
	if token != "" {
		c.auth = &http.BasicAuth{
			Username: "x-access-token",
			Password: token,
		}
	}
	return c
}

// Clone returns the root of a checkout of owner/repo at commit. An existing
// checkout of the same commit is reused.
func (g *GitCloner) Clone(ctx context.Context, owner, repo, commit string) (string, error) {
	dir := filepath.Join(g.cloneDir, owner, repo, commit)
	if _, err := os.Stat(dir); err == nil {
		r, err := git.PlainOpen(dir)
		if err != nil {
			return "", err
		}
		h, err := r.Head()
		if err != nil {
			return "", err
		}
		if h.Hash().String() == commit {
			g.log.Info("reusing existing checkout", "dir", dir, "head", h.Hash().String())
			return dir, nil
		}
		// Stale or diverged; start over.
		if err := os.RemoveAll(dir); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0750); err != nil {
		return "", err
	}

	g.log.Info("cloning repository", "owner", owner, "repo", repo, "commit", commit)
	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  fmt.Sprintf("https://github.com/%s/%s.git", owner, repo),
		Auth: g.auth,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("cloning: %w", err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return "", err
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Hash: plumbing.NewHash(commit),
	}); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("checking out %q: %w", commit, err)
	}

	h, err := r.Head()
	if err != nil {
		return "", err
	}
	g.log.Info("checkout complete", "dir", dir, "head", h.Hash().String())
	return dir, nil
}

// Cleanup removes a checkout produced by Clone.
func (g *GitCloner) Cleanup(owner, repo, commit string) error {
	return os.RemoveAll(filepath.Join(g.cloneDir, owner, repo, commit))
}
