package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/gemini"
	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/profilesync"
	"github.com/edgard/personabot/internal/session"
)

// HandlerDeps provides dependencies for the persona command handlers.
// GeminiClient is nil when no API key is configured; only the mention
// handler cares.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	GeminiClient gemini.Client
	Waiter       *session.Controller
	Gate         *persona.Gate
	Matcher      *persona.Matcher
	Switcher     *persona.Switcher
	Syncer       *profilesync.Syncer
}

// replyOrLog sends text back to the event's chat, logging delivery
// failures instead of propagating them.
func replyOrLog(ctx context.Context, log *slog.Logger, ev *platform.Event, text string) {
	if err := ev.Reply(ctx, text); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", ev.ChatID)
	}
}
