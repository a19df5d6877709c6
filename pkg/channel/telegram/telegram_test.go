package telegram

import (
	"testing"

	"mathbot/pkg/bus"
	"mathbot/pkg/config"

	"github.com/google/go-cmp/cmp"
	"github.com/mymmrac/telego"
)

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestToInbound(t *testing.T) {
	message := &telego.Message{
		MessageID: 7,
		Chat:      telego.Chat{ID: -1001},
		From:      &telego.User{ID: 42, FirstName: "Ada", LastName: "L"},
		Text:      "`$x^2$`",
	}

	got, ok := toInbound(bus.MessageEdited, message)
	if !ok {
		t.Fatal("toInbound skipped a text message")
	}

	want := bus.InboundMessage{
		Kind:    bus.MessageEdited,
		Channel: "telegram",
		Ref:     bus.MessageRef{ChannelID: "-1001", MessageID: "7"},
		Author:  bus.Author{ID: "42", Name: "Ada L"},
		Content: "`$x^2$`",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("toInbound mismatch (-want +got):\n%s", diff)
	}
}

func TestToInboundMarksBotsAndSkipsNonText(t *testing.T) {
	bot := &telego.Message{
		MessageID: 1,
		Chat:      telego.Chat{ID: 5},
		From:      &telego.User{ID: 9, IsBot: true, Username: "otherbot"},
		Text:      "hi",
	}
	got, ok := toInbound(bus.MessageCreated, bot)
	if !ok || !got.Author.Bot || got.Author.Name != "otherbot" {
		t.Fatalf("toInbound(bot) = %+v, %v", got.Author, ok)
	}

	if _, ok := toInbound(bus.MessageCreated, &telego.Message{Chat: telego.Chat{ID: 5}, From: &telego.User{ID: 1}}); ok {
		t.Fatal("toInbound accepted a message without text")
	}
	if _, ok := toInbound(bus.MessageCreated, &telego.Message{Chat: telego.Chat{ID: 5}, Text: "hi"}); ok {
		t.Fatal("toInbound accepted a message without sender")
	}
}

func TestOwnReactionTracking(t *testing.T) {
	ref := bus.MessageRef{ChannelID: "1", MessageID: "2"}
	adapter := &Adapter{own: map[bus.MessageRef][]string{ref: {"🤯", "💔"}}}

	want := []bus.Reaction{{Emoji: "🤯", Self: true}, {Emoji: "💔", Self: true}}
	if diff := cmp.Diff(want, adapter.ownReactions(ref)); diff != "" {
		t.Fatalf("ownReactions mismatch (-want +got):\n%s", diff)
	}
	if got := adapter.ownReactions(bus.MessageRef{ChannelID: "1", MessageID: "3"}); got != nil {
		t.Fatalf("ownReactions(unknown) = %v, want nil", got)
	}

	current := []string{"🤔"}
	if got := addOwnReaction(current, "🤔"); len(got) != 1 {
		t.Fatalf("addOwnReaction duplicated emoji: %v", got)
	}
	got := addOwnReaction(current, "🤯")
	if diff := cmp.Diff([]string{"🤔", "🤯"}, got); diff != "" {
		t.Fatalf("addOwnReaction mismatch (-want +got):\n%s", diff)
	}
	if len(current) != 1 {
		t.Fatalf("addOwnReaction mutated its input")
	}
}

func TestDirectMessageHTML(t *testing.T) {
	got := directMessageHTML(bus.DirectMessage{
		Text:   "Rendering failed:",
		Code:   "! Missing } inserted.\n<to be read again>",
		Footer: "Contact @admin & friends.",
	})

	want := "Rendering failed:\n<pre>! Missing } inserted.\n&lt;to be read again&gt;</pre>\nContact @admin &amp; friends."
	if got != want {
		t.Fatalf("directMessageHTML = %q, want %q", got, want)
	}
}

func TestParseRef(t *testing.T) {
	chatID, messageID, err := parseRef(bus.MessageRef{ChannelID: "-100123", MessageID: "45"})
	if err != nil || chatID != -100123 || messageID != 45 {
		t.Fatalf("parseRef = %d, %d, %v", chatID, messageID, err)
	}

	for _, ref := range []bus.MessageRef{{ChannelID: "chat", MessageID: "1"}, {ChannelID: "1", MessageID: "x"}} {
		if _, _, err := parseRef(ref); err == nil {
			t.Fatalf("parseRef(%v) error = nil", ref)
		}
	}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(configWithToken(" "), nil); err == nil {
		t.Fatal("NewAdapter without token error = nil")
	}
}

func configWithToken(token string) config.TelegramConfig {
	return config.TelegramConfig{Enabled: true, Token: token}
}
