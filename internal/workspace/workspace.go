package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Workspace directory layout:
//
//	engine-XXXX/
//	  obj/<extension>/   # object files, one directory per extension
//	  lib/               # extension static archives
//	  include/           # shared include directory passed to every compile
//	  src/               # runtime entry and generated registration sources
//	  bin/               # the linked executable
const (
	ObjDir     = "obj"
	LibDir     = "lib"
	IncludeDir = "include"
	SrcDir     = "src"
	BinDir     = "bin"
)

// Error reports a workspace that cannot be created or removed.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workspace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Workspace is a scratch directory owned by a single build session.
type Workspace struct {
	dir string

	mu       sync.Mutex
	disposed bool
}

// Create allocates a fresh directory under root (os.TempDir when empty) with
// the standard layout.
func Create(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, &Error{Op: "create", Path: root, Err: err}
		}
	}
	dir, err := os.MkdirTemp(root, "engine-")
	if err != nil {
		return nil, &Error{Op: "create", Path: root, Err: err}
	}
	// the pipeline records absolute artifact paths
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	ws := &Workspace{dir: dir}
	for _, sub := range []string{ObjDir, LibDir, IncludeDir, SrcDir, BinDir} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			os.RemoveAll(dir)
			return nil, &Error{Op: "create", Path: dir, Err: err}
		}
	}
	return ws, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins elem onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

// Mkdir creates the directory Path(elem...) and its parents.
func (w *Workspace) Mkdir(elem ...string) (string, error) {
	dir := w.Path(elem...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Op: "mkdir", Path: dir, Err: err}
	}
	return dir, nil
}

// WriteFile writes data to Path(elem...).
func (w *Workspace) WriteFile(data []byte, elem ...string) (string, error) {
	path := w.Path(elem...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &Error{Op: "write", Path: path, Err: err}
	}
	return path, nil
}

// Disposed reports whether Dispose has completed.
func (w *Workspace) Disposed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disposed
}

// Dispose removes the workspace and everything in it. Calls after the first
// successful one do nothing.
func (w *Workspace) Dispose() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return &Error{Op: "dispose", Path: w.dir, Err: err}
	}
	w.disposed = true
	return nil
}
