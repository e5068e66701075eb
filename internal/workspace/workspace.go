// Package workspace anchors storage paths to the oneline data directory, so
// relative manifest paths such as local_data/records.yml or oneline.db land
// under one root.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const dirPerm = 0o750

// Workspace is a resolved data directory.
type Workspace struct {
	Root string

	mu   sync.Mutex
	made map[string]struct{}
}

// New resolves root (expanding a leading ~) to an absolute path and creates
// it. An empty root means the current directory.
func New(root string) (*Workspace, error) {
	if root == "" {
		root = "."
	}
	abs, err := absPath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory %q: %w", root, err)
	}
	w := &Workspace{Root: abs, made: map[string]struct{}{}}
	if err := w.mkdir(abs); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return w, nil
}

// Resolve returns p unchanged when absolute, otherwise joined to the root.
func (w *Workspace) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(w.Root, p)
}

// EnsureParent creates the directory that will hold the file at p.
func (w *Workspace) EnsureParent(p string) error {
	return w.mkdir(filepath.Dir(w.Resolve(p)))
}

func (w *Workspace) mkdir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.made[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	w.made[dir] = struct{}{}
	return nil
}

func absPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[1:])
	}
	return filepath.Abs(p)
}
