// Package orchestrator reacts to chat message events: it classifies the content, renders math,
// keeps one response per source message, and reports failures to the author.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mathbot/pkg/bus"
	"mathbot/pkg/channel"
	"mathbot/pkg/classify"
	"mathbot/pkg/config"
	"mathbot/pkg/history"
	"mathbot/pkg/logger"
	"mathbot/pkg/metrics"
	"mathbot/pkg/render"

	"github.com/google/uuid"
)

const pingCommand = "!ping"

// Renderer turns fragments into an image. *render.Renderer satisfies it.
type Renderer interface {
	Render(ctx context.Context, fragments []classify.Fragment) (*render.Image, error)
}

// Options configures an Orchestrator. Grammar, Renderer, History and Platforms are required.
type Options struct {
	Grammar   classify.Grammar
	Renderer  Renderer
	History   *history.Store
	Platforms *channel.Registry
	Bus       *bus.MessageBus
	Metrics   *metrics.Metrics
	Reactions config.ReactionsConfig
	Notify    config.NotifyConfig
	Log       *slog.Logger
}

type Orchestrator struct {
	grammar   classify.Grammar
	renderer  Renderer
	history   *history.Store
	platforms *channel.Registry
	bus       *bus.MessageBus
	metrics   *metrics.Metrics
	reactions config.ReactionsConfig
	notify    config.NotifyConfig
	dmLimits  *limiterPool
	log       *slog.Logger
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Grammar == nil:
		return nil, errors.New("orchestrator grammar is required")
	case opts.Renderer == nil:
		return nil, errors.New("orchestrator renderer is required")
	case opts.History == nil:
		return nil, errors.New("orchestrator history is required")
	case opts.Platforms == nil:
		return nil, errors.New("orchestrator platforms are required")
	}

	return &Orchestrator{
		grammar:   opts.Grammar,
		renderer:  opts.Renderer,
		history:   opts.History,
		platforms: opts.Platforms,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		reactions: opts.Reactions,
		notify:    opts.Notify,
		dmLimits:  newLimiterPool(opts.Notify.DirectMessagesPerMinute),
		log:       logger.OrDefault(opts.Log).With("component", "orchestrator"),
	}, nil
}

// Handle processes one inbound event to completion. Platform call failures are logged and
// never returned; an error means the event itself could not be routed.
func (o *Orchestrator) Handle(ctx context.Context, msg bus.InboundMessage) error {
	log := o.log.With("channel", msg.Channel, "source", msg.Ref.String(), "kind", msg.Kind)

	if msg.Author.Bot {
		log.Debug("Ignoring message from bot account", "author_id", msg.Author.ID)
		return nil
	}

	platform, ok := o.platforms.Platform(msg.Channel)
	if !ok {
		return fmt.Errorf("no platform registered for channel %q", msg.Channel)
	}

	switch msg.Kind {
	case bus.MessageDeleted:
		o.metrics.ObserveMessage(string(msg.Kind), "")
		o.retract(ctx, platform, msg, log)
		return nil
	case bus.MessageCreated, bus.MessageEdited:
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}

	if strings.TrimSpace(msg.Content) == pingCommand && msg.Kind == bus.MessageCreated {
		log.Info("Ping", "author", msg.Author.Name)
		if _, err := platform.SendText(ctx, msg.Ref.ChannelID, msg.Ref.MessageID, "Pong!"); err != nil {
			o.platformError(log, "send_text", err)
		}
		return nil
	}

	class := o.grammar.Classify(msg.Content)
	o.metrics.ObserveMessage(string(msg.Kind), class.String())

	var fragments []classify.Fragment
	if class == classify.MathPresent {
		fragments = o.grammar.Extract(msg.Content)
	}
	if len(fragments) == 0 {
		o.retract(ctx, platform, msg, log)
		return nil
	}

	log.Info("Message contains maths",
		"author", msg.Author.Name,
		"fragments", len(fragments),
		"content", logger.Preview(msg.Content),
	)
	o.renderAndRespond(ctx, platform, msg, fragments, log)
	return nil
}

// retract removes the response recorded for the message and the bot's own reactions on it.
func (o *Orchestrator) retract(ctx context.Context, platform channel.Platform, msg bus.InboundMessage, log *slog.Logger) {
	response, ok := o.history.Forget(msg.Ref)
	if ok {
		o.deleteResponse(ctx, platform, msg, response, log)
	}

	if msg.Kind == bus.MessageDeleted {
		return
	}
	o.clearSelfReactions(ctx, platform, msg.Ref, msg.Reactions, log)
}

func (o *Orchestrator) renderAndRespond(ctx context.Context, platform channel.Platform, msg bus.InboundMessage, fragments []classify.Fragment, log *slog.Logger) {
	renderID := uuid.NewString()
	log = log.With("render_id", renderID)

	ticket := o.history.Begin(msg.Ref)
	finish := o.metrics.RenderStarted()
	o.publish(ctx, bus.Event{Type: bus.EventRenderStarted, Channel: msg.Channel, Source: msg.Ref, RenderID: renderID})

	image, err := o.renderer.Render(render.WithRenderID(ctx, renderID), fragments)
	if err != nil {
		o.history.Abandon(ticket)
		kind := render.KindOf(err)
		finish(string(kind))
		o.publish(ctx, bus.Event{
			Type:     bus.EventRenderFailed,
			Channel:  msg.Channel,
			Source:   msg.Ref,
			RenderID: renderID,
			Payload:  map[string]string{"kind": string(kind)},
			Error:    err.Error(),
		})
		if render.IsInputError(err) {
			log.Info("Render rejected input", "error", err)
		} else {
			log.Error("Render failed", "kind", kind, "error", err)
		}
		o.reportFailure(ctx, platform, msg, err, log)
		return
	}

	response, err := platform.SendImage(ctx, msg.Ref.ChannelID, msg.Ref.MessageID, image.Data, image.Filename)
	if err != nil {
		o.history.Abandon(ticket)
		finish(metrics.OutcomeSendFailed)
		o.platformError(log, "send_image", err)
		return
	}

	previous, hadPrevious, err := o.history.Commit(ticket, response)
	if errors.Is(err, history.ErrSuperseded) {
		finish(metrics.OutcomeSuperseded)
		log.Info("Render superseded by a newer event", "response", response.String())
		o.publish(ctx, bus.Event{Type: bus.EventRenderSuperseded, Channel: msg.Channel, Source: msg.Ref, Response: response, RenderID: renderID})
		if err := platform.DeleteMessage(ctx, response); err != nil {
			o.platformError(log, "delete_message", err)
		}
		return
	}

	finish(metrics.OutcomeRendered)
	log.Info("Response sent", "response", response.String(), "bytes", len(image.Data))
	o.publish(ctx, bus.Event{Type: bus.EventRenderSucceeded, Channel: msg.Channel, Source: msg.Ref, Response: response, RenderID: renderID})

	if hadPrevious && previous != response {
		o.deleteResponse(ctx, platform, msg, previous, log)
	}
	// The event's reaction snapshot can predate a failure reaction from an earlier render of
	// the same message, so the live state is always consulted.
	o.clearSelfReactions(ctx, platform, msg.Ref, msg.Reactions, log)
}

func (o *Orchestrator) deleteResponse(ctx context.Context, platform channel.Platform, msg bus.InboundMessage, response bus.MessageRef, log *slog.Logger) {
	if err := platform.DeleteMessage(ctx, response); err != nil {
		o.platformError(log, "delete_message", err, "response", response.String())
		return
	}

	o.metrics.ObserveRetraction()
	log.Info("Response retracted", "response", response.String())
	o.publish(ctx, bus.Event{Type: bus.EventResponseRetracted, Channel: msg.Channel, Source: msg.Ref, Response: response})
}

func (o *Orchestrator) platformError(log *slog.Logger, op string, err error, args ...any) {
	o.metrics.ObservePlatformError(op)
	log.Warn("Platform call failed", append([]any{"op", op, "error", err}, args...)...)
}

func (o *Orchestrator) publish(ctx context.Context, event bus.Event) {
	if o.bus == nil {
		return
	}
	o.bus.PublishEvent(ctx, event)
}
