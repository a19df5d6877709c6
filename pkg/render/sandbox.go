package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"unicode/utf8"
)

// SandboxSetupExitCode is the status the sandbox-exec helper exits with when it could not apply
// the profile or start the tool. It is never confused with a compiler failure.
const SandboxSetupExitCode = 125

// Launcher builds the command used to start one toolchain child.
type Launcher interface {
	Command(ctx context.Context, name string, args ...string) *exec.Cmd
}

// DirectLauncher starts tools without a limit profile. It exists for platforms without the
// sandbox helper and for tests driving fake toolchains.
type DirectLauncher struct{}

func (DirectLauncher) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// SandboxLauncher starts tools through the sandbox-exec helper, which applies Profile to its own
// process and then replaces itself with the tool.
type SandboxLauncher struct {
	// Executable is the helper binary, normally the running mathbot executable.
	Executable string
	// Args precede the helper flags, normally the "sandbox-exec" subcommand name.
	Args    []string
	Profile Profile
}

// NewSelfSandboxLauncher returns a launcher that re-executes the current binary.
func NewSelfSandboxLauncher(profile Profile) (*SandboxLauncher, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox helper executable: %w", err)
	}

	return &SandboxLauncher{
		Executable: self,
		Args:       []string{"sandbox-exec"},
		Profile:    profile,
	}, nil
}

func (l *SandboxLauncher) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	argv := make([]string, 0, len(l.Args)+len(args)+4)
	argv = append(argv, l.Args...)
	argv = append(argv, "--profile", l.Profile.Encode(), "--", name)
	argv = append(argv, args...)

	return exec.CommandContext(ctx, l.Executable, argv...)
}

// RunSandboxHelper is the body of the sandbox-exec helper. It only returns on failure; the
// caller should report the error on stderr and exit with SandboxSetupExitCode.
func RunSandboxHelper(rawProfile string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("sandbox-exec requires a command")
	}

	profile, err := DecodeProfile(rawProfile)
	if err != nil {
		return err
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", argv[0], err)
	}

	return execWithProfile(profile, path, argv, os.Environ())
}

// limitedWriter keeps the first max bytes written and silently drops the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		cut := runeBoundary(p, int(remaining))
		lw.written = lw.max
		_, err := lw.w.Write(p[:cut])
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}

// runeBoundary moves cut back to the start of a rune split by it, by at most utf8.UTFMax-1 bytes.
func runeBoundary(p []byte, cut int) int {
	for back := 0; back < utf8.UTFMax-1 && cut > 0 && cut < len(p) && !utf8.RuneStart(p[cut]); back++ {
		cut--
	}
	return cut
}
