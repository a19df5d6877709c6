package render

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind is the closed set of ways a render can fail.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureTypeset    FailureKind = "typeset"
	FailureConversion FailureKind = "conversion"
	FailureIO         FailureKind = "io"
	FailureEncoding   FailureKind = "encoding"
)

const (
	ioKindSandboxSetup = "sandbox_setup"
	ioKindToolMissing  = "tool_not_found"
	ioKindToolStart    = "tool_start"
	ioKindCanceled     = "canceled"

	maxDiagnosticBytes = 1500
)

// TypesetError reports a compiler failure. Transcript is the compiler's captured stdout.
type TypesetError struct {
	ExitCode   int
	Signal     string
	Transcript string
}

func (e *TypesetError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("typesetting stopped by %s", e.Signal)
	}

	return fmt.Sprintf("typesetting failed with exit status %d", e.ExitCode)
}

// Diagnostic returns the user-facing part of the transcript: everything from the first "!"
// marker, or the whole transcript when there is none, bounded in length.
func (e *TypesetError) Diagnostic() string {
	diagnostic := MinimizeDiagnostic(e.Transcript)
	if e.Signal != "" {
		diagnostic = strings.TrimSpace(diagnostic + "\n! Compilation was stopped by the sandbox (" + e.Signal + ").")
	}

	return truncate(diagnostic, maxDiagnosticBytes)
}

// ConversionError reports an image converter failure. No transcript is kept.
type ConversionError struct {
	ExitCode int
	Signal   string
}

func (e *ConversionError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("image conversion stopped by %s", e.Signal)
	}

	return fmt.Sprintf("image conversion failed with exit status %d", e.ExitCode)
}

// IOError reports a filesystem or process-start failure. Kind is a stable category.
type IOError struct {
	Op   string
	Kind string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// EncodingError reports subprocess output that is not valid UTF-8.
type EncodingError struct {
	Stage string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s output is not valid UTF-8", e.Stage)
}

// KindOf maps a render error onto its FailureKind. Errors outside the taxonomy map to FailureIO.
func KindOf(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var typesetErr *TypesetError
	var conversionErr *ConversionError
	var encodingErr *EncodingError
	switch {
	case errors.As(err, &typesetErr):
		return FailureTypeset
	case errors.As(err, &conversionErr):
		return FailureConversion
	case errors.As(err, &encodingErr):
		return FailureEncoding
	default:
		return FailureIO
	}
}

// IsInputError reports whether a failure is attributable to the submitted markup.
func IsInputError(err error) bool {
	return KindOf(err) == FailureTypeset
}

// MinimizeDiagnostic cuts a compiler transcript at its first "!" error marker.
func MinimizeDiagnostic(transcript string) string {
	if idx := strings.IndexByte(transcript, '!'); idx >= 0 {
		return transcript[idx:]
	}

	return transcript
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}

	return text[:cut] + "\n..."
}
