package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")

	ws, err := New(root)
	if err != nil {
		t.Fatalf("New(%q): %v", root, err)
	}
	if ws.Root != root {
		t.Errorf("Root = %q, want %q", ws.Root, root)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root dir not created: %v", err)
	}
}

func TestNewExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	ws, err := New("~/oneline")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "oneline"); ws.Root != want {
		t.Errorf("Root = %q, want %q", ws.Root, want)
	}
}

func TestResolveAndEnsureParent(t *testing.T) {
	ws, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"db/oneline.db", filepath.Join(ws.Root, "db", "oneline.db")},
		{"/abs/file.yml", "/abs/file.yml"},
	}
	for _, tc := range tests {
		if got := ws.Resolve(tc.in); got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if err := ws.EnsureParent("nested/deeper/records.yml"); err != nil {
		t.Fatalf("EnsureParent: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Root, "nested", "deeper")); err != nil {
		t.Errorf("parent not created: %v", err)
	}
}
