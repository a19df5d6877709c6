package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"mathbot/pkg/bus"
	"mathbot/pkg/channel"
	"mathbot/pkg/config"
	"mathbot/pkg/logger"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

const channelName = "telegram"

const (
	// Telegram allows roughly 30 bot API calls per second.
	apiCallsPerSecond = 25
	apiBurst          = 5
	// Bots without premium may place one reaction per message.
	maxBotReactions = 1
)

// Adapter bridges Telegram updates into inbound bus messages and implements channel.Platform on
// top of the bot API.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	bot       *telego.Bot
	limiter   *rate.Limiter
	log       *slog.Logger

	mu  sync.Mutex
	own map[bus.MessageRef][]string
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		bot:       bot,
		limiter:   rate.NewLimiter(rate.Limit(apiCallsPerSecond), apiBurst),
		log:       logger.OrDefault(log).With("component", "channel.telegram"),
		own:       make(map[bus.MessageRef][]string),
	}, nil
}

// Name returns the channel identifier used in bus messages and logs.
func (a *Adapter) Name() string {
	return channelName
}

func (a *Adapter) Platform() channel.Platform {
	return a
}

// Run starts Telegram long polling and forwards new and edited text messages to handler.
// Telegram does not report message deletions to bots.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			kind, message := bus.MessageCreated, update.Message
			if message == nil {
				kind, message = bus.MessageEdited, update.EditedMessage
			}
			if message == nil {
				continue
			}

			inbound, ok := toInbound(kind, message)
			if !ok {
				continue
			}
			if !a.senderAllowed(inbound.Author.ID) {
				a.log.Debug("Ignoring message from unauthorized sender", "sender_id", inbound.Author.ID)
				continue
			}
			inbound.Reactions = a.ownReactions(inbound.Ref)
			inbound.Metadata = map[string]string{"update_id": strconv.Itoa(update.UpdateID)}

			a.log.Info("Received message",
				"kind", kind,
				"source", inbound.Ref.String(),
				"sender_id", inbound.Author.ID,
				"content", logger.Preview(inbound.Content),
			)

			if err := handler(ctx, inbound); err != nil {
				a.log.Error("Failed to process inbound message", "source", inbound.Ref.String(), "error", err)
			}
		}
	}
}

// toInbound converts a Telegram text message. Non-text messages and messages without a sender
// are skipped.
func toInbound(kind bus.MessageKind, message *telego.Message) (bus.InboundMessage, bool) {
	if message.From == nil || strings.TrimSpace(message.Text) == "" {
		return bus.InboundMessage{}, false
	}

	name := message.From.Username
	if name == "" {
		name = strings.TrimSpace(message.From.FirstName + " " + message.From.LastName)
	}

	return bus.InboundMessage{
		Kind:    kind,
		Channel: channelName,
		Ref: bus.MessageRef{
			ChannelID: strconv.FormatInt(message.Chat.ID, 10),
			MessageID: strconv.Itoa(message.MessageID),
		},
		Author: bus.Author{
			ID:   strconv.FormatInt(message.From.ID, 10),
			Name: name,
			Bot:  message.From.IsBot,
		},
		Content: message.Text,
	}, true
}

func (a *Adapter) SendImage(ctx context.Context, channelID string, replyTo string, image []byte, filename string) (bus.MessageRef, error) {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return bus.MessageRef{}, err
	}

	params := tu.Photo(tu.ID(chatID), tu.File(tu.NameReader(bytes.NewReader(image), filename)))
	if replyTo != "" {
		messageID, err := parseMessageID(replyTo)
		if err != nil {
			return bus.MessageRef{}, err
		}
		params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: messageID, AllowSendingWithoutReply: true})
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return bus.MessageRef{}, err
	}
	sent, err := a.bot.SendPhoto(ctx, params)
	if err != nil {
		return bus.MessageRef{}, fmt.Errorf("send photo: %w", err)
	}

	return bus.MessageRef{ChannelID: channelID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (a *Adapter) SendText(ctx context.Context, channelID string, replyTo string, text string) (bus.MessageRef, error) {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return bus.MessageRef{}, err
	}

	params := tu.Message(tu.ID(chatID), text)
	if replyTo != "" {
		messageID, err := parseMessageID(replyTo)
		if err != nil {
			return bus.MessageRef{}, err
		}
		params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: messageID, AllowSendingWithoutReply: true})
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return bus.MessageRef{}, err
	}
	sent, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		return bus.MessageRef{}, fmt.Errorf("send message: %w", err)
	}

	return bus.MessageRef{ChannelID: channelID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref bus.MessageRef) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := a.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(chatID), MessageID: messageID}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	a.mu.Lock()
	delete(a.own, ref)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) AddReaction(ctx context.Context, ref bus.MessageRef, emoji string) error {
	a.mu.Lock()
	next := addOwnReaction(a.own[ref], emoji)
	a.mu.Unlock()

	if err := a.setReactions(ctx, ref, next); err != nil {
		return err
	}

	a.mu.Lock()
	a.own[ref] = next
	a.mu.Unlock()
	return nil
}

func (a *Adapter) RemoveReaction(ctx context.Context, ref bus.MessageRef, emoji string) error {
	a.mu.Lock()
	next := slices.DeleteFunc(slices.Clone(a.own[ref]), func(e string) bool { return e == emoji })
	a.mu.Unlock()

	if err := a.setReactions(ctx, ref, next); err != nil {
		return err
	}

	a.mu.Lock()
	if len(next) == 0 {
		delete(a.own, ref)
	} else {
		a.own[ref] = next
	}
	a.mu.Unlock()
	return nil
}

// Reactions reports the reactions this bot placed; the bot API cannot list other users'
// reactions on a message.
func (a *Adapter) Reactions(_ context.Context, ref bus.MessageRef) ([]bus.Reaction, error) {
	return a.ownReactions(ref), nil
}

func (a *Adapter) SendDirectMessage(ctx context.Context, userID string, message bus.DirectMessage) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	params := tu.Message(tu.ID(chatID), directMessageHTML(message)).WithParseMode(telego.ModeHTML)
	if _, err := a.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send direct message: %w", err)
	}

	return nil
}

// setReactions replaces the bot's reactions on a message. Only the newest maxBotReactions are sent.
func (a *Adapter) setReactions(ctx context.Context, ref bus.MessageRef, emojis []string) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}

	if len(emojis) > maxBotReactions {
		emojis = emojis[len(emojis)-maxBotReactions:]
	}
	reaction := make([]telego.ReactionType, 0, len(emojis))
	for _, emoji := range emojis {
		reaction = append(reaction, &telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: emoji})
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	params := &telego.SetMessageReactionParams{ChatID: tu.ID(chatID), MessageID: messageID, Reaction: reaction}
	if err := a.bot.SetMessageReaction(ctx, params); err != nil {
		return fmt.Errorf("set message reaction: %w", err)
	}

	return nil
}

func (a *Adapter) ownReactions(ref bus.MessageRef) []bus.Reaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	emojis := a.own[ref]
	if len(emojis) == 0 {
		return nil
	}

	reactions := make([]bus.Reaction, 0, len(emojis))
	for _, emoji := range emojis {
		reactions = append(reactions, bus.Reaction{Emoji: emoji, Self: true})
	}
	return reactions
}

func addOwnReaction(current []string, emoji string) []string {
	if slices.Contains(current, emoji) {
		return current
	}

	return append(slices.Clone(current), emoji)
}

// directMessageHTML renders a direct message with the code part as a preformatted block.
func directMessageHTML(message bus.DirectMessage) string {
	var b strings.Builder
	b.WriteString(html.EscapeString(message.Text))
	if message.Code != "" {
		b.WriteString("\n<pre>")
		b.WriteString(html.EscapeString(message.Code))
		b.WriteString("</pre>")
	}
	if message.Footer != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(message.Footer))
	}

	return b.String()
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

func parseRef(ref bus.MessageRef) (int64, int, error) {
	chatID, err := parseChatID(ref.ChannelID)
	if err != nil {
		return 0, 0, err
	}
	messageID, err := parseMessageID(ref.MessageID)
	if err != nil {
		return 0, 0, err
	}

	return chatID, messageID, nil
}

func parseChatID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q", value)
	}

	return id, nil
}

func parseMessageID(value string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid telegram message id %q", value)
	}

	return id, nil
}
