package handlers

import (
	"context"
	"strings"

	"github.com/edgard/personabot/internal/platform"
)

// NewListHandler returns a handler for the list subcommand.
func NewListHandler(deps HandlerDeps) platform.HandlerFunc {
	return listHandler{deps}.Handle
}

// listHandler processes the list subcommand using injected dependencies.
type listHandler struct {
	deps HandlerDeps
}

func (h listHandler) Handle(ctx context.Context, ev *platform.Event) {
	log := h.deps.Logger.With("handler", "list")

	personas, err := h.deps.Store.ListPersonas(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list personas", "error", err)
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.GeneralError)
		return
	}

	if len(personas) == 0 {
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.PersonaListEmpty)
		return
	}

	activeID, err := h.deps.Switcher.ActivePersonaID(ctx, ev.OriginKey())
	if err != nil {
		log.WarnContext(ctx, "Failed to resolve active persona for listing", "origin", ev.OriginKey(), "error", err)
		activeID = ""
	}

	var sb strings.Builder
	sb.WriteString(h.deps.Config.Messages.PersonaListHeader)
	for _, p := range personas {
		sb.WriteString("\n- ")
		sb.WriteString(p.ID)
		if p.ID == activeID {
			sb.WriteString(" (active)")
		}
	}

	log.InfoContext(ctx, "Listing personas", "count", len(personas), "chat_id", ev.ChatID)
	replyOrLog(ctx, log, ev, sb.String())
}
