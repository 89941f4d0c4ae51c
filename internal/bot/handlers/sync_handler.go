package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/platform"
)

// NewSyncHandler returns a handler for the sync subcommand.
func NewSyncHandler(deps HandlerDeps) platform.HandlerFunc {
	return syncHandler{deps}.Handle
}

// syncHandler forces a profile push for a persona, defaulting to the one
// active in the current origin.
type syncHandler struct {
	deps HandlerDeps
}

func (h syncHandler) Handle(ctx context.Context, ev *platform.Event) {
	log := h.deps.Logger.With("handler", "sync")
	msgs := h.deps.Config.Messages

	id, ok := subcommandArg(ev.Text)
	if !ok {
		activeID, err := h.deps.Switcher.ActivePersonaID(ctx, ev.OriginKey())
		if err != nil {
			log.ErrorContext(ctx, "Failed to resolve active persona", "origin", ev.OriginKey(), "error", err)
			replyOrLog(ctx, log, ev, msgs.GeneralError)
			return
		}
		if activeID == "" {
			replyOrLog(ctx, log, ev, msgs.PersonaListEmpty)
			return
		}
		id = activeID
	}

	_, err := h.deps.Store.GetPersona(ctx, id)
	switch {
	case errors.Is(err, database.ErrPersonaNotFound):
		replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.PersonaNotFoundFmt, id))
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to get persona", "persona_id", id, "error", err)
		replyOrLog(ctx, log, ev, msgs.GeneralError)
		return
	}

	h.deps.Syncer.MaybeSync(ctx, ev, id, true)

	log.InfoContext(ctx, "Profile sync forced", "persona_id", id, "bot_key", ev.BotKey())
	replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.SyncTriggeredFmt, id))
}
