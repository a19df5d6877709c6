package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"mathbot/pkg/bus"
	"mathbot/pkg/channel"
)

// clearSelfReactions removes every reaction the bot placed on ref. Platforms may report their
// own reactions late, so the state is read once more after a removal pass.
func (o *Orchestrator) clearSelfReactions(ctx context.Context, platform channel.Platform, ref bus.MessageRef, snapshot []bus.Reaction, log *slog.Logger) {
	reactions, err := platform.Reactions(ctx, ref)
	if err != nil {
		if !errors.Is(err, channel.ErrUnsupported) {
			o.platformError(log, "list_reactions", err)
		}
		reactions = snapshot
	}

	if o.removeSelfReactions(ctx, platform, ref, reactions, log) == 0 {
		return
	}

	remaining, err := platform.Reactions(ctx, ref)
	if err != nil {
		return
	}
	if leftover := o.removeSelfReactions(ctx, platform, ref, remaining, log); leftover > 0 {
		log.Debug("Removed reactions on re-check", "count", leftover)
	}
}

func (o *Orchestrator) removeSelfReactions(ctx context.Context, platform channel.Platform, ref bus.MessageRef, reactions []bus.Reaction, log *slog.Logger) int {
	removed := 0
	for _, reaction := range reactions {
		if !reaction.Self {
			continue
		}
		if err := platform.RemoveReaction(ctx, ref, reaction.Emoji); err != nil {
			o.platformError(log, "remove_reaction", err, "emoji", reaction.Emoji)
			continue
		}
		removed++
	}

	return removed
}

func (o *Orchestrator) addReaction(ctx context.Context, platform channel.Platform, ref bus.MessageRef, emoji string, log *slog.Logger) {
	if emoji == "" {
		return
	}
	if err := platform.AddReaction(ctx, ref, emoji); err != nil {
		o.platformError(log, "add_reaction", err, "emoji", emoji)
	}
}
