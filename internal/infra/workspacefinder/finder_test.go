package workspacefinder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gauntletci/gauntlet/internal/domain"
)

func TestFindRoot_WalksUpward(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "gauntlet.yaml"), []byte("gauntlet: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	nested := filepath.Join(root, "pipelines", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	f := NewFinder()
	got, err := f.FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot error: %v", err)
	}

	// TempDir may sit behind a symlink on some platforms; compare resolved paths.
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != wantResolved {
		t.Fatalf("expected root=%s, got=%s", wantResolved, gotResolved)
	}
}

func TestFindRoot_FilePathUsesDir(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "gauntlet.yaml"), []byte("gauntlet: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p := filepath.Join(root, "somefile.txt")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := NewFinder()
	if _, err := f.FindRoot(p); err != nil {
		t.Fatalf("FindRoot error: %v", err)
	}
}

func TestFindRoot_NotFound(t *testing.T) {
	f := NewFinder()
	_, err := f.FindRoot(t.TempDir())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found, got: %v", err)
	}
}

func TestFindRoot_EmptyStart(t *testing.T) {
	f := NewFinder()
	_, err := f.FindRoot("")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.KindInvalidConfig) {
		t.Fatalf("expected invalid_config, got: %v", err)
	}
}
