package render

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultProfile(t *testing.T) {
	want := Profile{
		CoreBytes:      0,
		CPUSeconds:     4,
		DataBytes:      200 * mib,
		StackBytes:     10 * mib,
		FileBytes:      10 * mib,
		OpenFiles:      200,
		MsgQueueBytes:  1024,
		RealtimeMicros: 1,
		Nice:           10,
		WallClock:      10 * time.Second,
	}

	if diff := cmp.Diff(want, DefaultProfile()); diff != "" {
		t.Fatalf("DefaultProfile mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileEncodeDecode(t *testing.T) {
	profile := DefaultProfile()

	decoded, err := DecodeProfile(profile.Encode())
	if err != nil {
		t.Fatalf("DecodeProfile() error = %v", err)
	}
	if diff := cmp.Diff(profile, decoded); diff != "" {
		t.Fatalf("decoded profile mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeProfileRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "{", `{"nice":25}`, `{"nice":-1}`} {
		if _, err := DecodeProfile(raw); err == nil {
			t.Fatalf("DecodeProfile(%q) error = nil", raw)
		}
	}
}

func TestSandboxLauncherCommand(t *testing.T) {
	launcher := &SandboxLauncher{
		Executable: "/usr/local/bin/mathbot",
		Args:       []string{"sandbox-exec"},
		Profile:    Profile{CPUSeconds: 4},
	}

	cmd := launcher.Command(context.Background(), "pdflatex", "-halt-on-error", "maths.tex")
	want := []string{
		"/usr/local/bin/mathbot",
		"sandbox-exec",
		"--profile", `{"core":0,"cpu":4}`,
		"--",
		"pdflatex", "-halt-on-error", "maths.tex",
	}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Fatalf("command args mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSandboxHelperRejectsBadInput(t *testing.T) {
	if err := RunSandboxHelper(DefaultProfile().Encode(), nil); err == nil {
		t.Fatalf("RunSandboxHelper() without command error = nil")
	}

	err := RunSandboxHelper(DefaultProfile().Encode(), []string{"mathbot-no-such-tool"})
	if err == nil || !strings.Contains(err.Error(), "mathbot-no-such-tool") {
		t.Fatalf("RunSandboxHelper() missing tool error = %v", err)
	}
}

func TestLimitedWriter(t *testing.T) {
	var sink strings.Builder
	lw := &limitedWriter{w: &sink, max: 8}

	for _, chunk := range []string{"abcd", "efghij", "klm"} {
		n, err := lw.Write([]byte(chunk))
		if err != nil {
			t.Fatalf("Write(%q) error = %v", chunk, err)
		}
		if n != len(chunk) {
			t.Fatalf("Write(%q) = %d, want %d", chunk, n, len(chunk))
		}
	}

	if sink.String() != "abcdefgh" {
		t.Fatalf("kept = %q, want %q", sink.String(), "abcdefgh")
	}
	if !lw.truncated {
		t.Fatalf("truncated = false")
	}
}

func TestLimitedWriterKeepsWholeRunes(t *testing.T) {
	var sink strings.Builder
	lw := &limitedWriter{w: &sink, max: 7}

	// "é" is two bytes; a cut at seven bytes falls inside the second one.
	chunk := "abcdéé"
	if n, err := lw.Write([]byte(chunk)); err != nil || n != len(chunk) {
		t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
	}
	if _, err := lw.Write([]byte("tail")); err != nil {
		t.Fatalf("Write(tail) error = %v", err)
	}

	if sink.String() != "abcdé" {
		t.Fatalf("kept = %q, want %q", sink.String(), "abcdé")
	}
	if !utf8.ValidString(sink.String()) {
		t.Fatalf("kept transcript is not valid UTF-8")
	}
	if !lw.truncated {
		t.Fatalf("truncated = false")
	}
}
