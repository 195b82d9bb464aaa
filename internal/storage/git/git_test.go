package git

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepoCommitAndLog(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	r, err := Open(ctx, dir, "", "", "data.xlsx")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	commits, err := r.Log(ctx, 0)
	if err != nil {
		t.Fatalf("Log on empty repo failed: %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("expected no commits, got %d", len(commits))
	}

	p := filepath.Join(dir, "data.xlsx")
	if err := os.WriteFile(p, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Files not passed to Commit are never tracked.
	if err := os.WriteFile(filepath.Join(dir, "secret.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Commit(ctx, Author{Name: "alice", Email: "alice@example.com"}, "merge one.xlsx", "data.xlsx"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	// Unchanged content does not produce a commit.
	if err := r.Commit(ctx, Author{}, "noop", "data.xlsx"); err != nil {
		t.Fatalf("Commit (noop) failed: %v", err)
	}
	if err := os.WriteFile(p, []byte("v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Commit(ctx, Author{}, "merge two.xlsx", "data.xlsx"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	commits, err = r.Log(ctx, 0)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
	if !strings.HasPrefix(commits[0].Message, "merge two.xlsx") {
		t.Errorf("newest commit message = %q", commits[0].Message)
	}
	if commits[0].Author != "rdlindex" {
		t.Errorf("default author = %q", commits[0].Author)
	}
	if commits[1].Author != "alice" {
		t.Errorf("author = %q", commits[1].Author)
	}
	if got, err := r.Log(ctx, 1); err != nil || len(got) != 1 {
		t.Errorf("Log(1) = %d commits, err %v", len(got), err)
	}

	// Reopening an existing repository works.
	if _, err := Open(ctx, dir, "", "", "data.xlsx"); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
}
