package handlers

import (
	"context"

	"github.com/edgard/personabot/internal/platform"
)

// NewHelpHandler returns a handler for the help subcommand.
func NewHelpHandler(deps HandlerDeps) platform.HandlerFunc {
	return helpHandler{deps}.Handle
}

// helpHandler processes the help subcommand using injected dependencies.
type helpHandler struct {
	deps HandlerDeps
}

func (h helpHandler) Handle(ctx context.Context, ev *platform.Event) {
	log := h.deps.Logger.With("handler", "help")

	log.InfoContext(ctx, "Handling help command", "chat_id", ev.ChatID, "sender_id", ev.SenderID)
	replyOrLog(ctx, log, ev, h.deps.Config.Messages.Help)
}
