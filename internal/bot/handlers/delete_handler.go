package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/platform"
)

// NewDeleteHandler returns a handler for the delete subcommand.
func NewDeleteHandler(deps HandlerDeps) platform.HandlerFunc {
	return deleteHandler{deps}.Handle
}

// deleteHandler processes the delete subcommand using injected
// dependencies. It is always registered behind the admin middleware.
type deleteHandler struct {
	deps HandlerDeps
}

func (h deleteHandler) Handle(ctx context.Context, ev *platform.Event) {
	log := h.deps.Logger.With("handler", "delete")
	msgs := h.deps.Config.Messages

	id, ok := subcommandArg(ev.Text)
	if !ok {
		replyOrLog(ctx, log, ev, msgs.Help)
		return
	}

	err := h.deps.Store.DeletePersona(ctx, id)
	switch {
	case errors.Is(err, database.ErrPersonaNotFound):
		replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.PersonaNotFoundFmt, id))
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to delete persona", "persona_id", id, "error", err)
		replyOrLog(ctx, log, ev, msgs.GeneralError)
		return
	}

	// The persona is gone; its avatar asset and cached sync entries go too
	// so recreating the id starts clean.
	if err := h.deps.Syncer.DeleteAvatar(ctx, id); err != nil {
		log.WarnContext(ctx, "Failed to purge avatar after delete", "persona_id", id, "error", err)
	}

	log.InfoContext(ctx, "Persona deleted", "persona_id", id, "sender_id", ev.SenderID)
	replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.PersonaDeletedFmt, id))
}
