package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestResolveRootExpandsHomeAndCreatesDirectory(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	root, err := ResolveRoot("~/render-scratch")
	if err != nil {
		t.Fatalf("ResolveRoot error: %v", err)
	}

	want, err := filepath.EvalSymlinks(filepath.Join(homeDir, "render-scratch"))
	if err != nil {
		t.Fatalf("EvalSymlinks error: %v", err)
	}
	if root != want {
		t.Fatalf("ResolveRoot root = %q, want %q", root, want)
	}

	if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
		t.Fatalf("work root missing: %v", statErr)
	}
}

func TestAcquireCreatesUniquePrivateDirectories(t *testing.T) {
	root := mustRoot(t)

	first, err := root.Acquire()
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	t.Cleanup(func() { _ = first.Release() })

	second, err := root.Acquire()
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	t.Cleanup(func() { _ = second.Release() })

	if first.Dir() == second.Dir() {
		t.Fatalf("scopes share directory %q", first.Dir())
	}
	if !strings.HasPrefix(filepath.Base(first.Dir()), scopePrefix) {
		t.Fatalf("scope dir = %q, want prefix %q", first.Dir(), scopePrefix)
	}

	info, err := os.Stat(first.Dir())
	if err != nil {
		t.Fatalf("stat scope: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Fatalf("scope perm = %o, want 700", perm)
	}
}

func TestScopeWriteReadRelease(t *testing.T) {
	root := mustRoot(t)

	scope, err := root.Acquire()
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}

	if err := scope.WriteFile("maths.tex", []byte("x")); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	data, err := scope.ReadFile("maths.tex")
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "x" {
		t.Fatalf("ReadFile = %q, want %q", data, "x")
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if err := scope.Release(); err != nil {
		t.Fatalf("second Release error: %v", err)
	}
	if _, err := os.Stat(scope.Dir()); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("scope dir still present after release: %v", err)
	}

	if _, err := scope.ReadFile("maths.tex"); CategoryFromError(err) != ErrorReleased {
		t.Fatalf("error category = %q, want %q", CategoryFromError(err), ErrorReleased)
	}
}

func TestScopeReadMissingFileIsPathNotFound(t *testing.T) {
	root := mustRoot(t)
	scope, err := root.Acquire()
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	t.Cleanup(func() { _ = scope.Release() })

	_, err = scope.ReadFile("maths.png")
	if CategoryFromError(err) != ErrorPathNotFound {
		t.Fatalf("error category = %q, want %q", CategoryFromError(err), ErrorPathNotFound)
	}
	if strings.Contains(err.Error(), scope.Dir()) {
		t.Fatalf("error %q leaks host path", err)
	}
}

func TestScopePathRejectsEscapes(t *testing.T) {
	root := mustRoot(t)
	scope, err := root.Acquire()
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	t.Cleanup(func() { _ = scope.Release() })

	tests := map[string]string{
		"  ":            ErrorInvalidPath,
		"../escape.txt": ErrorOutsideWorkspace,
		"/etc/passwd":   ErrorOutsideWorkspace,
		".":             ErrorOutsideWorkspace,
		"a/../../b.txt": ErrorOutsideWorkspace,
	}

	for input, want := range tests {
		_, err := scope.Path(input)
		if got := CategoryFromError(err); got != want {
			t.Fatalf("Path(%q) category = %q, want %q", input, got, want)
		}
	}
}

func TestSweepRemovesStaleScopes(t *testing.T) {
	root := mustRoot(t)

	stale := filepath.Join(root.Path(), scopePrefix+"stale")
	if err := os.MkdirAll(filepath.Join(stale, "nested"), 0o700); err != nil {
		t.Fatalf("mkdir stale: %v", err)
	}
	unrelated := filepath.Join(root.Path(), "keep-me")
	if err := os.Mkdir(unrelated, 0o700); err != nil {
		t.Fatalf("mkdir unrelated: %v", err)
	}

	removed, err := root.Sweep()
	if err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Sweep removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("stale scope still present: %v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("unrelated dir removed: %v", err)
	}
}

func TestCategoryFromError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: NewError(ErrorInvalidPath, "x"), want: ErrorInvalidPath},
		{err: &os.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, want: ErrorPathNotFound},
		{err: &os.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, want: ErrorPermissionDenied},
		{err: &os.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, want: ErrorNoSpace},
		{err: errors.New("boom"), want: ErrorIO},
	}

	for _, tt := range tests {
		if got := CategoryFromError(tt.err); got != tt.want {
			t.Fatalf("CategoryFromError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func mustRoot(t *testing.T) *Root {
	t.Helper()

	root, err := NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("NewRoot error: %v", err)
	}

	return root
}
