// Package workspace owns the scratch directories renders run in: one uniquely named directory
// per render, removed when the render finishes.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const scopePrefix = "mathbot-render-"

// Root is the parent directory that scoped render directories are created under.
type Root struct {
	rootPath string
}

// NewRoot resolves a work root path and ensures the directory exists. An empty path uses the
// system temp directory.
func NewRoot(rootPath string) (*Root, error) {
	resolved, err := ResolveRoot(rootPath)
	if err != nil {
		return nil, err
	}

	return &Root{rootPath: resolved}, nil
}

// ResolveRoot normalizes work root input and creates it when missing.
func ResolveRoot(rootPath string) (string, error) {
	trimmed := strings.TrimSpace(rootPath)
	if trimmed == "" {
		trimmed = os.TempDir()
	}

	expanded, err := expandHome(trimmed)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute work root: %w", err)
	}

	cleanPath := filepath.Clean(absPath)
	if err := os.MkdirAll(cleanPath, 0o755); err != nil {
		return "", fmt.Errorf("create work root: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		return "", NormalizeIOError(err, "resolve work root")
	}

	return filepath.Clean(resolved), nil
}

// Path returns the normalized absolute work root.
func (r *Root) Path() string {
	if r == nil {
		return ""
	}

	return r.rootPath
}

// Acquire creates a fresh, private scope directory. Callers must Release it.
func (r *Root) Acquire() (*Scope, error) {
	if r == nil {
		return nil, NewError(ErrorIO, "work root is nil")
	}

	id := uuid.NewString()
	dir := filepath.Join(r.rootPath, scopePrefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, NormalizeIOError(err, "create render directory")
	}

	return &Scope{id: id, dir: dir}, nil
}

// Sweep removes scope directories left behind by a previous process that was killed before it
// could release them. It returns how many were removed.
func (r *Root) Sweep() (int, error) {
	if r == nil {
		return 0, nil
	}

	matches, err := filepath.Glob(filepath.Join(r.rootPath, scopePrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("list stale render directories: %w", err)
	}

	removed := 0
	for _, match := range matches {
		info, statErr := os.Lstat(match)
		if statErr != nil || !info.IsDir() {
			continue
		}
		if err := os.RemoveAll(match); err != nil {
			return removed, NormalizeIOError(err, "remove stale render directory")
		}
		removed++
	}

	return removed, nil
}

// Scope is one render's private working directory.
type Scope struct {
	id  string
	dir string

	mu       sync.Mutex
	released bool
}

// ID returns the unique suffix of the scope directory.
func (s *Scope) ID() string {
	return s.id
}

// Dir returns the absolute scope directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Path resolves a bare file name inside the scope.
func (s *Scope) Path(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", NewError(ErrorInvalidPath, "file name must not be empty")
	}
	if filepath.IsAbs(trimmed) {
		return "", NewError(ErrorOutsideWorkspace, "absolute paths are not allowed")
	}

	candidate := filepath.Clean(filepath.Join(s.dir, trimmed))
	if !isWithin(s.dir, candidate) || candidate == s.dir {
		return "", NewError(ErrorOutsideWorkspace, "resolved path escapes render directory")
	}

	return candidate, nil
}

// WriteFile writes data to a file inside the scope.
func (s *Scope) WriteFile(name string, data []byte) error {
	path, err := s.usablePath(name)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return NormalizeIOError(err, "write "+name)
	}

	return nil
}

// ReadFile reads a file inside the scope fully into memory.
func (s *Scope) ReadFile(name string) ([]byte, error) {
	path, err := s.usablePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NormalizeIOError(err, "read "+name)
	}

	return data, nil
}

// Release removes the scope directory and everything in it. It is safe to call repeatedly.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	if err := os.RemoveAll(s.dir); err != nil {
		return NormalizeIOError(err, "remove render directory")
	}

	return nil
}

func (s *Scope) usablePath(name string) (string, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return "", NewError(ErrorReleased, "render directory already released")
	}

	return s.Path(name)
}

func expandHome(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}

	prefix := "~" + string(filepath.Separator)
	if strings.HasPrefix(path, prefix) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, prefix)), nil
	}

	return path, nil
}

func isWithin(root string, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." {
		return false
	}
	if strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	return !filepath.IsAbs(rel)
}
