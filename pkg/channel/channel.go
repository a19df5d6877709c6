package channel

import (
	"context"
	"errors"
	"sort"

	"mathbot/pkg/bus"
)

// ErrUnsupported is returned by platform operations a transport cannot perform, such as reading
// reactions on a platform that never reports them.
var ErrUnsupported = errors.New("operation not supported by channel")

// Handler processes one inbound message event.
type Handler func(context.Context, bus.InboundMessage) error

// Platform is the set of chat operations the bot performs on a channel.
type Platform interface {
	// SendImage posts an image into channelID as a reply to replyTo and returns the new message.
	SendImage(ctx context.Context, channelID string, replyTo string, image []byte, filename string) (bus.MessageRef, error)
	// SendText posts a plain text reply.
	SendText(ctx context.Context, channelID string, replyTo string, text string) (bus.MessageRef, error)
	DeleteMessage(ctx context.Context, ref bus.MessageRef) error
	AddReaction(ctx context.Context, ref bus.MessageRef, emoji string) error
	// RemoveReaction removes one of the bot's own reactions.
	RemoveReaction(ctx context.Context, ref bus.MessageRef, emoji string) error
	// Reactions returns the current reactions on a message, marking the bot's own.
	Reactions(ctx context.Context, ref bus.MessageRef) ([]bus.Reaction, error)
	SendDirectMessage(ctx context.Context, userID string, message bus.DirectMessage) error
}

// Adapter bridges one external transport (for example Telegram) into the bot.
type Adapter interface {
	Name() string
	Platform() Platform
	Run(context.Context, Handler) error
}

// Registry resolves the platform for an inbound message's channel name.
type Registry struct {
	platforms map[string]Platform
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{platforms: make(map[string]Platform, len(adapters))}
	for _, adapter := range adapters {
		r.platforms[adapter.Name()] = adapter.Platform()
	}

	return r
}

// Register adds or replaces the platform for name.
func (r *Registry) Register(name string, platform Platform) {
	r.platforms[name] = platform
}

func (r *Registry) Platform(name string) (Platform, bool) {
	platform, ok := r.platforms[name]
	return platform, ok
}

// Names returns the registered channel names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
