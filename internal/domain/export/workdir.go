package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WorkDir is a temporary directory owned by exactly one export. Nothing
// outside that export writes into it, and Close removes it with everything
// inside.
type WorkDir struct {
	path string
}

// NewWorkDir creates a fresh directory under parent, or under the system
// temp directory when parent is empty.
func NewWorkDir(parent, kind string) (*WorkDir, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return nil, fmt.Errorf("create export temp root: %w", err)
		}
	}
	p, err := os.MkdirTemp(parent, fmt.Sprintf("%s-%s-", kind, uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("create export work dir: %w", err)
	}
	return &WorkDir{path: p}, nil
}

func (w *WorkDir) Path() string { return w.path }

// Join returns a path inside the work directory.
func (w *WorkDir) Join(elem ...string) string {
	return filepath.Join(append([]string{w.path}, elem...)...)
}

// Mkdir creates a subdirectory and returns its path.
func (w *WorkDir) Mkdir(elem ...string) (string, error) {
	p := w.Join(elem...)
	if err := os.MkdirAll(p, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Base(p), err)
	}
	return p, nil
}

// WriteFile writes data to a file inside the work directory.
func (w *WorkDir) WriteFile(name string, data []byte) (string, error) {
	p := w.Join(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(name), err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}

// Close removes the directory. It is safe to call more than once.
func (w *WorkDir) Close() error {
	if w == nil || w.path == "" {
		return nil
	}
	err := os.RemoveAll(w.path)
	w.path = ""
	return err
}
