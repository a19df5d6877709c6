package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mathbot/pkg/bus"
	"mathbot/pkg/channel"
	"mathbot/pkg/render"

	"golang.org/x/time/rate"
)

const (
	typesetFailureText = "Your maths could not be rendered. The typesetter stopped with:"
	systemFailureText  = "Sorry, something went wrong on our side while rendering your maths. It was not caused by what you wrote."
	directMessageBurst = 3
)

// reportFailure marks the source message and tells the author what went wrong. Only typesetting
// failures include diagnostic text.
func (o *Orchestrator) reportFailure(ctx context.Context, platform channel.Platform, msg bus.InboundMessage, renderErr error, log *slog.Logger) {
	var note bus.DirectMessage

	var typesetErr *render.TypesetError
	if errors.As(renderErr, &typesetErr) {
		o.addReaction(ctx, platform, msg.Ref, o.reactions.Warning, log)
		note = bus.DirectMessage{
			Text:   typesetFailureText,
			Code:   typesetErr.Diagnostic(),
			Footer: "If you think this is a mistake, contact " + o.maintainer() + ".",
		}
	} else {
		for _, emoji := range o.reactions.Failure {
			o.addReaction(ctx, platform, msg.Ref, emoji, log)
		}
		note = bus.DirectMessage{
			Text:   systemFailureText,
			Footer: "If this keeps happening, please contact " + o.maintainer() + ".",
		}
	}

	if msg.Author.ID == "" {
		return
	}
	if !o.dmLimits.Allow(msg.Author.ID) {
		log.Info("Direct message suppressed by rate limit", "author_id", msg.Author.ID)
		return
	}
	if err := platform.SendDirectMessage(ctx, msg.Author.ID, note); err != nil {
		o.platformError(log, "send_direct_message", err, "author_id", msg.Author.ID)
	}
}

func (o *Orchestrator) maintainer() string {
	if o.notify.Maintainer == "" {
		return "the bot maintainer"
	}

	return o.notify.Maintainer
}

// limiterPool holds one token bucket per author.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
}

func newLimiterPool(perMinute float64) *limiterPool {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / perMinute))
	}

	return &limiterPool{m: make(map[string]*rate.Limiter), limit: limit}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(p.limit, directMessageBurst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
