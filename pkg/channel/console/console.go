// Package console is an in-process chat channel. Messages typed into the terminal UI are fed to
// the bot and everything the bot does to them is reported back as transcript entries.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"mathbot/pkg/bus"
	"mathbot/pkg/channel"
	"mathbot/pkg/logger"
)

const (
	channelName = "console"
	chatID      = "console"
)

// ErrUnknownMessage is returned for edits and deletes of messages that do not exist.
var ErrUnknownMessage = errors.New("unknown message")

type EntryKind string

const (
	EntryUser     EntryKind = "user"
	EntryEdited   EntryKind = "edited"
	EntryImage    EntryKind = "image"
	EntryText     EntryKind = "text"
	EntryDeleted  EntryKind = "deleted"
	EntryReaction EntryKind = "reaction"
	EntryDirect   EntryKind = "direct"
)

// Entry is one change in the console transcript.
type Entry struct {
	Kind    EntryKind
	ID      string
	ReplyTo string
	Text    string
	// Path is where an image response was written.
	Path    string
	Emoji   string
	Removed bool
	Direct  bus.DirectMessage
}

type message struct {
	text      string
	fromBot   bool
	reactions []bus.Reaction
}

// Console implements both channel.Adapter and channel.Platform.
type Console struct {
	user     bus.Author
	imageDir string
	log      *slog.Logger

	submissions chan bus.InboundMessage
	entries     chan Entry

	mu       sync.Mutex
	nextID   int
	messages map[string]*message
}

// New creates a console channel writing image responses into imageDir.
func New(imageDir string, log *slog.Logger) (*Console, error) {
	if strings.TrimSpace(imageDir) == "" {
		return nil, errors.New("console image directory is required")
	}
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create console image directory: %w", err)
	}

	return &Console{
		user:        bus.Author{ID: "local", Name: localUserName()},
		imageDir:    imageDir,
		log:         logger.OrDefault(log).With("component", "channel.console"),
		submissions: make(chan bus.InboundMessage, 16),
		entries:     make(chan Entry, 64),
		messages:    make(map[string]*message),
	}, nil
}

func (c *Console) Name() string {
	return channelName
}

func (c *Console) Platform() channel.Platform {
	return c
}

// Entries streams transcript changes. Entries are dropped when the reader falls behind.
func (c *Console) Entries() <-chan Entry {
	return c.entries
}

// Run delivers submitted messages to handler until ctx is done.
func (c *Console) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	c.log.Info("Console channel started", "image_dir", c.imageDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case inbound := <-c.submissions:
			if err := handler(ctx, inbound); err != nil {
				c.log.Error("Failed to process inbound message", "source", inbound.Ref.String(), "error", err)
			}
		}
	}
}

// Post sends a new user message and returns its id.
func (c *Console) Post(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	id := c.allocateID("m")
	c.messages[id] = &message{text: text}
	c.mu.Unlock()

	c.emit(Entry{Kind: EntryUser, ID: id, Text: text})
	return id, c.submit(ctx, bus.MessageCreated, id, text)
}

// Edit replaces the text of a user message.
func (c *Console) Edit(ctx context.Context, id string, text string) error {
	c.mu.Lock()
	msg, ok := c.messages[id]
	if !ok || msg.fromBot {
		c.mu.Unlock()
		return fmt.Errorf("edit %s: %w", id, ErrUnknownMessage)
	}
	msg.text = text
	c.mu.Unlock()

	c.emit(Entry{Kind: EntryEdited, ID: id, Text: text})
	return c.submit(ctx, bus.MessageEdited, id, text)
}

// Delete removes a user message.
func (c *Console) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	msg, ok := c.messages[id]
	if !ok || msg.fromBot {
		c.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, ErrUnknownMessage)
	}
	delete(c.messages, id)
	c.mu.Unlock()

	c.emit(Entry{Kind: EntryDeleted, ID: id})
	return c.submit(ctx, bus.MessageDeleted, id, "")
}

func (c *Console) submit(ctx context.Context, kind bus.MessageKind, id string, text string) error {
	ref := bus.MessageRef{ChannelID: chatID, MessageID: id}
	inbound := bus.InboundMessage{
		Kind:    kind,
		Channel: channelName,
		Ref:     ref,
		Author:  c.user,
		Content: text,
	}
	if kind != bus.MessageDeleted {
		inbound.Reactions = c.reactionsOf(ref)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.submissions <- inbound:
		return nil
	}
}

func (c *Console) SendImage(_ context.Context, channelID string, replyTo string, image []byte, filename string) (bus.MessageRef, error) {
	c.mu.Lock()
	id := c.allocateID("b")
	c.mu.Unlock()

	path := filepath.Join(c.imageDir, id+"-"+filepath.Base(filename))
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return bus.MessageRef{}, fmt.Errorf("write console image: %w", err)
	}

	c.mu.Lock()
	c.messages[id] = &message{fromBot: true, text: path}
	c.mu.Unlock()

	c.emit(Entry{Kind: EntryImage, ID: id, ReplyTo: replyTo, Path: path})
	return bus.MessageRef{ChannelID: channelID, MessageID: id}, nil
}

func (c *Console) SendText(_ context.Context, channelID string, replyTo string, text string) (bus.MessageRef, error) {
	c.mu.Lock()
	id := c.allocateID("b")
	c.messages[id] = &message{fromBot: true, text: text}
	c.mu.Unlock()

	c.emit(Entry{Kind: EntryText, ID: id, ReplyTo: replyTo, Text: text})
	return bus.MessageRef{ChannelID: channelID, MessageID: id}, nil
}

func (c *Console) DeleteMessage(_ context.Context, ref bus.MessageRef) error {
	c.mu.Lock()
	msg, ok := c.messages[ref.MessageID]
	if ok {
		delete(c.messages, ref.MessageID)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("delete %s: %w", ref.MessageID, ErrUnknownMessage)
	}
	if msg.fromBot && filepath.IsAbs(msg.text) {
		if err := os.Remove(msg.text); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("Failed to remove console image", "path", msg.text, "error", err)
		}
	}

	c.emit(Entry{Kind: EntryDeleted, ID: ref.MessageID})
	return nil
}

func (c *Console) AddReaction(_ context.Context, ref bus.MessageRef, emoji string) error {
	c.mu.Lock()
	msg, ok := c.messages[ref.MessageID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("react to %s: %w", ref.MessageID, ErrUnknownMessage)
	}
	reaction := bus.Reaction{Emoji: emoji, Self: true}
	added := !slices.Contains(msg.reactions, reaction)
	if added {
		msg.reactions = append(msg.reactions, reaction)
	}
	c.mu.Unlock()

	if added {
		c.emit(Entry{Kind: EntryReaction, ID: ref.MessageID, Emoji: emoji})
	}
	return nil
}

func (c *Console) RemoveReaction(_ context.Context, ref bus.MessageRef, emoji string) error {
	c.mu.Lock()
	msg, ok := c.messages[ref.MessageID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unreact on %s: %w", ref.MessageID, ErrUnknownMessage)
	}
	before := len(msg.reactions)
	msg.reactions = slices.DeleteFunc(msg.reactions, func(r bus.Reaction) bool {
		return r.Self && r.Emoji == emoji
	})
	removed := len(msg.reactions) != before
	c.mu.Unlock()

	if removed {
		c.emit(Entry{Kind: EntryReaction, ID: ref.MessageID, Emoji: emoji, Removed: true})
	}
	return nil
}

func (c *Console) Reactions(_ context.Context, ref bus.MessageRef) ([]bus.Reaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.messages[ref.MessageID]
	if !ok {
		return nil, fmt.Errorf("reactions of %s: %w", ref.MessageID, ErrUnknownMessage)
	}
	return slices.Clone(msg.reactions), nil
}

func (c *Console) SendDirectMessage(_ context.Context, userID string, note bus.DirectMessage) error {
	if userID != c.user.ID {
		return fmt.Errorf("no console user %q", userID)
	}

	c.emit(Entry{Kind: EntryDirect, Direct: note})
	return nil
}

func (c *Console) reactionsOf(ref bus.MessageRef) []bus.Reaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg, ok := c.messages[ref.MessageID]; ok {
		return slices.Clone(msg.reactions)
	}
	return nil
}

// allocateID must be called with c.mu held.
func (c *Console) allocateID(prefix string) string {
	c.nextID++
	return prefix + strconv.Itoa(c.nextID)
}

func (c *Console) emit(entry Entry) {
	select {
	case c.entries <- entry:
	default:
		c.log.Debug("Dropping console entry for slow reader", "kind", entry.Kind, "id", entry.ID)
	}
}

func localUserName() string {
	if name := strings.TrimSpace(os.Getenv("USER")); name != "" {
		return name
	}
	return "you"
}
