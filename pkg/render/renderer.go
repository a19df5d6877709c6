// Package render typesets math fragments into PNG images by driving an external compiler and
// image converter inside a scoped scratch directory, each child under a resource-limit profile.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
	"unicode/utf8"

	"mathbot/pkg/classify"
	"mathbot/pkg/config"
	"mathbot/pkg/logger"
	"mathbot/pkg/workspace"

	"github.com/google/uuid"
)

const (
	maxTranscriptBytes = 64 * 1024
	childWaitDelay     = 2 * time.Second

	ImageFormat   = "png"
	ImageFilename = pngName
)

// ErrNoFragments is returned when Render is called without anything to typeset.
var ErrNoFragments = errors.New("no fragments to render")

type renderIDKey struct{}

// WithRenderID attaches a correlation id that Render logs instead of generating its own.
func WithRenderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, renderIDKey{}, id)
}

func renderIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(renderIDKey{}).(string); ok && id != "" {
		return id
	}

	return uuid.NewString()
}

// Image is a successfully rendered raster.
type Image struct {
	Data     []byte
	Format   string
	Filename string
}

// Options configures a Renderer.
type Options struct {
	LatexBinary   string
	ConvertBinary string
	Density       int
	Border        int
	Root          *workspace.Root
	Launcher      Launcher
	// Stderr receives the children's standard error. Defaults to os.Stderr.
	Stderr io.Writer
	Log    *slog.Logger
}

// Renderer turns fragments into images. It is safe for concurrent use; every call gets its own
// scratch directory.
type Renderer struct {
	latex    string
	convert  string
	density  int
	border   int
	root     *workspace.Root
	launcher Launcher
	stderr   io.Writer
	log      *slog.Logger
}

// New validates options and constructs a Renderer.
func New(opts Options) (*Renderer, error) {
	if opts.Root == nil {
		return nil, errors.New("render work root is required")
	}
	if opts.LatexBinary == "" || opts.ConvertBinary == "" {
		return nil, errors.New("latex and convert binaries are required")
	}
	if opts.Launcher == nil {
		opts.Launcher = DirectLauncher{}
	}
	if opts.Density <= 0 {
		opts.Density = 150
	}
	if opts.Border < 0 {
		opts.Border = 0
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	return &Renderer{
		latex:    opts.LatexBinary,
		convert:  opts.ConvertBinary,
		density:  opts.Density,
		border:   opts.Border,
		root:     opts.Root,
		launcher: opts.Launcher,
		stderr:   opts.Stderr,
		log:      logger.OrDefault(opts.Log).With("component", "render"),
	}, nil
}

// NewFromConfig builds a Renderer from the renderer config section, using the sandbox-exec
// helper when the sandbox is enabled. Children's stderr goes to stderr, or os.Stderr when nil.
func NewFromConfig(cfg config.RendererConfig, stderr io.Writer, log *slog.Logger) (*Renderer, error) {
	root, err := workspace.NewRoot(cfg.WorkRoot)
	if err != nil {
		return nil, fmt.Errorf("prepare render work root: %w", err)
	}

	var launcher Launcher = DirectLauncher{}
	if cfg.Sandbox.Enabled {
		sandbox, err := NewSelfSandboxLauncher(ProfileFromConfig(cfg.Sandbox))
		if err != nil {
			return nil, err
		}
		launcher = sandbox
	}

	return New(Options{
		LatexBinary:   cfg.LatexBinary,
		ConvertBinary: cfg.ConvertBinary,
		Density:       cfg.Density,
		Border:        cfg.Border,
		Root:          root,
		Launcher:      launcher,
		Stderr:        stderr,
		Log:           log,
	})
}

// Root returns the work root scratch directories are created under.
func (r *Renderer) Root() *workspace.Root {
	return r.root
}

// Check verifies that both toolchain binaries can be found.
func (r *Renderer) Check() error {
	for _, binary := range []string{r.latex, r.convert} {
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("toolchain binary %s: %w", binary, err)
		}
	}

	if sandbox, ok := r.launcher.(*SandboxLauncher); ok {
		if _, err := os.Stat(sandbox.Executable); err != nil {
			return fmt.Errorf("sandbox helper %s: %w", sandbox.Executable, err)
		}
	}

	return nil
}

// Render typesets fragments into one image. Failures are one of *TypesetError,
// *ConversionError, *IOError or *EncodingError. Nothing is retried.
func (r *Renderer) Render(ctx context.Context, fragments []classify.Fragment) (*Image, error) {
	if len(fragments) == 0 {
		return nil, ErrNoFragments
	}

	log := r.log.With("render_id", renderIDFrom(ctx))
	started := time.Now()

	scope, err := r.root.Acquire()
	if err != nil {
		return nil, ioError("create render directory", err)
	}
	defer func() {
		if err := scope.Release(); err != nil {
			log.Warn("Failed to remove render directory", "dir", scope.Dir(), "error", err)
		}
	}()

	log.Debug("Rendering", "fragments", len(fragments), "dir", scope.Dir())

	if err := scope.WriteFile(texName, []byte(Document(fragments))); err != nil {
		return nil, ioError("write document", err)
	}

	var transcript bytes.Buffer
	latexArgs := []string{"-interaction=nonstopmode", "-halt-on-error", "-no-shell-escape", texName}
	if err := r.run(ctx, scope, &transcript, r.latex, latexArgs...); err != nil {
		exitErr, ok := childExit(err)
		if !ok {
			return nil, err
		}
		if !utf8.Valid(transcript.Bytes()) {
			return nil, &EncodingError{Stage: "typeset"}
		}
		log.Info("Typesetting failed", "exit_code", exitErr.ExitCode(), "duration", time.Since(started))
		return nil, &TypesetError{
			ExitCode:   exitErr.ExitCode(),
			Signal:     exitSignal(exitErr),
			Transcript: transcript.String(),
		}
	}

	log.Debug("Typesetting complete")

	border := strconv.Itoa(r.border)
	convertArgs := []string{
		"-flatten",
		"-density", strconv.Itoa(r.density),
		pdfName,
		"-bordercolor", "none",
		"-border", border + "x" + border,
		pngName,
	}
	if err := r.run(ctx, scope, r.stderr, r.convert, convertArgs...); err != nil {
		exitErr, ok := childExit(err)
		if !ok {
			return nil, err
		}
		log.Warn("Image conversion failed", "exit_code", exitErr.ExitCode(), "duration", time.Since(started))
		return nil, &ConversionError{ExitCode: exitErr.ExitCode(), Signal: exitSignal(exitErr)}
	}

	data, err := scope.ReadFile(pngName)
	if err != nil {
		return nil, ioError("read image", err)
	}

	log.Info("Render complete", "bytes", len(data), "duration", time.Since(started))
	return &Image{Data: data, Format: ImageFormat, Filename: ImageFilename}, nil
}

// run executes one toolchain child inside the scope. A non-zero exit is returned as
// *exec.ExitError; anything else is already an *IOError.
func (r *Renderer) run(ctx context.Context, scope *workspace.Scope, stdout io.Writer, name string, args ...string) error {
	cmd := r.launcher.Command(ctx, name, args...)
	cmd.Dir = scope.Dir()
	cmd.Env = append(os.Environ(), "openin_any=p", "openout_any=p")
	cmd.Stdout = &limitedWriter{w: stdout, max: maxTranscriptBytes}
	cmd.Stderr = r.stderr
	cmd.WaitDelay = childWaitDelay
	setupProcessGroup(cmd)

	err := cmd.Run()
	_ = killProcessGroup(cmd)
	if err == nil {
		return nil
	}

	// A canceled child is killed, so its exit status says nothing about the document.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &IOError{Op: "run " + name, Kind: ioKindCanceled, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == SandboxSetupExitCode {
			if _, sandboxed := r.launcher.(*SandboxLauncher); sandboxed {
				return &IOError{Op: "start " + name, Kind: ioKindSandboxSetup, Err: err}
			}
		}
		return exitErr
	}

	if errors.Is(err, exec.ErrNotFound) {
		return &IOError{Op: "start " + name, Kind: ioKindToolMissing, Err: err}
	}
	return &IOError{Op: "start " + name, Kind: ioKindToolStart, Err: err}
}

// childExit returns the exit status of a tool that ran to completion. An *IOError may wrap an
// exit status (a helper that could not set up the sandbox), but that one is never the tool's.
func childExit(err error) (*exec.ExitError, bool) {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return nil, false
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, false
	}
	return exitErr, true
}

func ioError(op string, err error) error {
	return &IOError{Op: op, Kind: workspace.CategoryFromError(err), Err: err}
}
