// Package git records the history of the data directory in a git repository.
//
// The repository is managed with go-git so no git binary is needed. Only
// files explicitly passed to Commit are tracked.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Commit is a summary of one commit.
type Commit struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// Repo is a git repository rooted at a data directory.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository in dir, initializing it if needed.
//
// A .gitignore ignoring everything but the tracked files is written on
// initialization so secrets in the data directory never get staged.
func Open(_ context.Context, dir, defaultName, defaultEmail string, tracked ...string) (*Repo, error) {
	if defaultName == "" {
		defaultName = "rdlindex"
	}
	if defaultEmail == "" {
		defaultEmail = "rdlindex@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if !errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("failed to open git repo: %w", err)
		}
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	r := &Repo{dir: dir, defaultName: defaultName, defaultEmail: defaultEmail, repo: repo}
	if err := r.ensureGitignore(tracked); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) ensureGitignore(tracked []string) error {
	p := filepath.Join(r.dir, ".gitignore")
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	content := "*\n!.gitignore\n"
	for _, f := range tracked {
		content += "!" + f + "\n"
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil { //nolint:gosec // G306: not secret
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return nil
}

// Commit stages files (relative to the repository root) and commits them.
//
// It is a no-op when none of the files changed.
func (r *Repo) Commit(ctx context.Context, author Author, msg string, files ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Add(".gitignore"); err != nil {
		return fmt.Errorf("failed to stage .gitignore: %w", err)
	}
	for _, f := range files {
		if _, err := w.Add(f); err != nil {
			return fmt.Errorf("failed to stage %s: %w", f, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	staged := false
	for _, fs := range status {
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return nil
	}

	name := author.Name
	email := author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	h, err := w.Commit(msg, &gogit.CommitOptions{
		Author:    &object.Signature{Name: name, Email: email, When: now},
		Committer: &object.Signature{Name: r.defaultName, Email: r.defaultEmail, When: now},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	slog.DebugContext(ctx, "Committed", "hash", h.String(), "msg", msg)
	return nil
}

// Log returns up to limit commits, newest first. limit <= 0 returns all.
func (r *Repo) Log(_ context.Context, limit int) ([]Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.repo.Head(); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Commit{}, nil
		}
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	it, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer it.Close()
	out := []Commit{}
	for limit <= 0 || len(out) < limit {
		c, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate log: %w", err)
		}
		out = append(out, Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: c.Message,
			When:    c.Author.When,
		})
	}
	return out, nil
}
