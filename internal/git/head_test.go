package git

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestRevision(t *testing.T) {
	repoPath := filepath.Join(t.TempDir(), "project")
	repo, err := git.PlainInit(repoPath, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}

	if rev, err := Revision(repoPath); err != nil || rev != "" {
		t.Fatalf("empty repository: got %q, %v", rev, err)
	}

	outDir := filepath.Join(repoPath, ".vercel", "output")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoPath, "package.json"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := w.Add("package.json"); err != nil {
		t.Fatalf("add: %v", err)
	}
	commit, err := w.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	rev, err := Revision(outDir)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if rev != commit.String() {
		t.Fatalf("revision = %q, want %q", rev, commit.String())
	}
}

func TestRevision_NotARepository(t *testing.T) {
	rev, err := Revision(t.TempDir())
	if err != nil || rev != "" {
		t.Fatalf("got %q, %v; want empty revision", rev, err)
	}
}
