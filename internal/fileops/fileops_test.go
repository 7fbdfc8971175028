package fileops

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func mkfile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(rel), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "b.txt")
	mkfile(t, root, "a.txt")
	mkfile(t, root, "sub/nested/deep.txt")
	mkfile(t, root, "sub/c.txt")
	mkfile(t, root, ".sync/config.toml")
	mkfile(t, root, ".sync/image.toml")

	got, err := Walk(root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{"a.txt", "b.txt", "sub/c.txt", "sub/nested/deep.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Walk = %v; want %v", got, want)
	}
}

func TestWalkSkipsOnlyRootSyncDir(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "sub/.sync/inner.txt")

	got, err := Walk(root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	// Only the control directory at the root is special.
	want := []string{"sub/.sync/inner.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Walk = %v; want %v", got, want)
	}
}

func TestWalkEmpty(t *testing.T) {
	got, err := Walk(t.TempDir())
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Walk of empty dir = %v; want empty", got)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "deep", "nested", "file.txt")

	if err := WriteFile(path, []byte("content")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q; want %q", data, "content")
	}
}

func TestModTime(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	when := time.Unix(1700000000, 500_000_000)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatal(err)
	}

	mod, err := ModTime(path)
	if err != nil {
		t.Fatalf("ModTime failed: %v", err)
	}
	// Sub-second precision is discarded.
	if mod != 1700000000 {
		t.Errorf("ModTime = %d; want 1700000000", mod)
	}
}

func TestModTimeMissing(t *testing.T) {
	if _, err := ModTime(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("ModTime of missing file should fail")
	}
}
