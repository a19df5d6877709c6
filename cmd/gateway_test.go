package cmd

import (
	"context"
	"testing"

	channelpkg "mathbot/pkg/channel"
	"mathbot/pkg/config"
)

type testAdapter struct{ name string }

func (a testAdapter) Name() string { return a.name }

func (a testAdapter) Platform() channelpkg.Platform { return nil }

func (a testAdapter) Run(_ context.Context, _ channelpkg.Handler) error { return nil }

func TestEnabledAdaptersRequiresAtLeastOneChannel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := enabledAdapters(cfg, nil); err == nil {
		t.Fatal("expected error when no channels are enabled")
	}
}

func TestEnabledAdaptersRejectsTelegramWithoutToken(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Channels: config.ChannelsConfig{Telegram: config.TelegramConfig{Enabled: true}}}
	if _, err := enabledAdapters(cfg, nil); err == nil {
		t.Fatal("expected error for telegram without a token")
	}
}

func TestEnabledChannelNames(t *testing.T) {
	t.Parallel()

	adapters := []channelpkg.Adapter{testAdapter{name: "telegram"}, testAdapter{name: "console"}}
	if got := enabledChannelNames(adapters); got != "telegram,console" {
		t.Fatalf("enabledChannelNames = %q, want %q", got, "telegram,console")
	}
}
