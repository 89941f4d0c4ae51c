package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/profilesync"
)

// NewAvatarHandler returns a handler for the avatar subcommand.
func NewAvatarHandler(deps HandlerDeps) platform.HandlerFunc {
	return avatarHandler{deps}.Handle
}

// avatarHandler saves an attached image as a persona's avatar asset.
type avatarHandler struct {
	deps HandlerDeps
}

func (h avatarHandler) Handle(ctx context.Context, ev *platform.Event) {
	log := h.deps.Logger.With("handler", "avatar")
	msgs := h.deps.Config.Messages

	id, ok := subcommandArg(ev.Text)
	if !ok {
		replyOrLog(ctx, log, ev, msgs.Help)
		return
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

	path, err := h.deps.Syncer.SaveAvatar(ctx, ev, id)
	switch {
	case errors.Is(err, profilesync.ErrNoImage):
		replyOrLog(ctx, log, ev, msgs.AvatarUsage)
		return
	case errors.Is(err, profilesync.ErrUnsupportedAvatar):
		replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.ManageFailedFmt, err))
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to save avatar", "persona_id", id, "error", err)
		replyOrLog(ctx, log, ev, msgs.GeneralError)
		return
	}

	log.InfoContext(ctx, "Avatar saved", "persona_id", id, "path", path)
	replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.AvatarSavedFmt, id))

	// When the persona is active here, push the new image right away.
	activeID, err := h.deps.Switcher.ActivePersonaID(ctx, ev.OriginKey())
	if err == nil && activeID == id {
		h.deps.Syncer.MaybeSync(ctx, ev, id, true)
	}
}
