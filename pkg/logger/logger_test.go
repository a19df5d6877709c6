package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"mathbot/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.With("component", "orchestrator").Info("Render finished", "render_id", "42", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Render finished" {
		t.Fatalf("message = %q, want %q", entry.Message, "Render finished")
	}
	if entry.Component != "orchestrator" {
		t.Fatalf("component = %q, want %q", entry.Component, "orchestrator")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if entry.RenderID != "42" {
		t.Fatalf("render_id = %q, want %q", entry.RenderID, "42")
	}
	if _, ok := entry.Fields["render_id"]; ok {
		t.Fatal("render_id should be promoted out of fields")
	}
	if got := entry.Fields["ok"]; got != true {
		t.Fatalf("fields.ok = %v, want true", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envLogFormat, "text")
	defer unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv(envLogLevel)
	_ = os.Unsetenv(envLogFormat)
	_ = os.Unsetenv(envLogAddSource)
}

func TestPreview(t *testing.T) {
	if got := Preview("  hello \n  world "); got != "hello world" {
		t.Fatalf("Preview = %q, want %q", got, "hello world")
	}

	long := strings.Repeat("é", previewLimit)
	got := Preview(long)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("Preview long = %q, want ellipsis suffix", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("Preview long produced invalid UTF-8: %q", got)
	}
	if len(got) > previewLimit+3 {
		t.Fatalf("Preview long len = %d, want <= %d", len(got), previewLimit+3)
	}
}

func TestDiscardDropsRecords(t *testing.T) {
	log := Discard()
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected discard logger to drop error records")
	}
}

func TestLoggerJSONCorrelationAndErrors(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "debug"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.With("channel", "telegram", "source", "100/7").Warn("Platform call failed", "op", "delete_message", "error", errors.New("message not found"))

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Channel != "telegram" || entry.Source != "100/7" {
		t.Fatalf("correlation = (%q, %q), want (telegram, 100/7)", entry.Channel, entry.Source)
	}
	if got := entry.Fields["error"]; got != "message not found" {
		t.Fatalf("fields.error = %v, want %q", got, "message not found")
	}
	if got := entry.Fields["op"]; got != "delete_message" {
		t.Fatalf("fields.op = %v, want %q", got, "delete_message")
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) != slog.Default() {
		t.Fatal("OrDefault(nil) should return slog.Default()")
	}
	log := Discard()
	if OrDefault(log) != log {
		t.Fatal("OrDefault should return a non-nil logger unchanged")
	}
}
