package render

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMinimizeDiagnostic(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       string
	}{
		{
			name:       "cut at first marker",
			transcript: "This is pdfTeX, Version 3.14\n(./maths.tex\n! Undefined control sequence.\nl.5 \\foo\n! Emergency stop.\n",
			want:       "! Undefined control sequence.\nl.5 \\foo\n! Emergency stop.\n",
		},
		{name: "no marker", transcript: "Fatal format file error", want: "Fatal format file error"},
		{name: "empty", transcript: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinimizeDiagnostic(tt.transcript); got != tt.want {
				t.Fatalf("MinimizeDiagnostic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypesetErrorDiagnostic(t *testing.T) {
	err := &TypesetError{ExitCode: 1, Transcript: "noise\n! Missing $ inserted.\n"}
	if got := err.Diagnostic(); got != "! Missing $ inserted.\n" {
		t.Fatalf("Diagnostic() = %q", got)
	}
	if got := err.Error(); got != "typesetting failed with exit status 1" {
		t.Fatalf("Error() = %q", got)
	}

	signaled := &TypesetError{ExitCode: -1, Signal: "alarm clock", Transcript: "(./maths.tex"}
	if got := signaled.Diagnostic(); !strings.HasSuffix(got, "stopped by the sandbox (alarm clock).") {
		t.Fatalf("signaled Diagnostic() = %q", got)
	}
}

func TestTypesetErrorDiagnosticIsBounded(t *testing.T) {
	err := &TypesetError{ExitCode: 1, Transcript: "! " + strings.Repeat("é", maxDiagnosticBytes)}

	got := err.Diagnostic()
	if len(got) > maxDiagnosticBytes+len("\n...") {
		t.Fatalf("Diagnostic() length = %d", len(got))
	}
	if !strings.HasSuffix(got, "\n...") {
		t.Fatalf("Diagnostic() missing truncation marker: %q", got[len(got)-10:])
	}
	if !strings.HasPrefix(got, "! ") {
		t.Fatalf("Diagnostic() prefix = %q", got[:4])
	}
	body := strings.TrimSuffix(got, "\n...")
	if strings.ContainsRune(body, '\uFFFD') || !strings.HasSuffix(body, "é") {
		t.Fatalf("Diagnostic() cut inside a rune")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		want  FailureKind
		input bool
	}{
		{name: "nil", err: nil, want: FailureNone},
		{name: "typeset", err: &TypesetError{ExitCode: 1}, want: FailureTypeset, input: true},
		{name: "wrapped typeset", err: fmt.Errorf("render: %w", &TypesetError{ExitCode: 1}), want: FailureTypeset, input: true},
		{name: "conversion", err: &ConversionError{ExitCode: 1}, want: FailureConversion},
		{name: "encoding", err: &EncodingError{Stage: "typeset"}, want: FailureEncoding},
		{name: "io", err: &IOError{Op: "write document", Kind: "no_space", Err: errors.New("disk full")}, want: FailureIO},
		{name: "foreign", err: errors.New("boom"), want: FailureIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf() = %q, want %q", got, tt.want)
			}
			if got := IsInputError(tt.err); got != tt.input {
				t.Fatalf("IsInputError() = %v, want %v", got, tt.input)
			}
		})
	}
}

func TestIOErrorUnwraps(t *testing.T) {
	cause := errors.New("permission denied")
	err := &IOError{Op: "write document", Kind: "permission_denied", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(IOError, cause) = false")
	}
	if got := err.Error(); got != "write document: permission_denied: permission denied" {
		t.Fatalf("Error() = %q", got)
	}
}
