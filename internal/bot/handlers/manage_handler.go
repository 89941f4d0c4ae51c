package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/session"
)

// manageMode selects between the create and update flavors of the
// interactive content flow.
type manageMode int

const (
	modeCreate manageMode = iota
	modeUpdate
)

// NewCreateHandler returns a handler for the create subcommand.
func NewCreateHandler(deps HandlerDeps) platform.HandlerFunc {
	return manageHandler{deps: deps, mode: modeCreate}.Handle
}

// NewUpdateHandler returns a handler for the update subcommand.
func NewUpdateHandler(deps HandlerDeps) platform.HandlerFunc {
	return manageHandler{deps: deps, mode: modeUpdate}.Handle
}

// manageHandler runs the two-step create/update flow: validate the id,
// ask for content, then wait for the caller's next message in the
// background and apply it.
type manageHandler struct {
	deps HandlerDeps
	mode manageMode
}

func (h manageHandler) name() string {
	if h.mode == modeCreate {
		return "create"
	}
	return "update"
}

func (h manageHandler) Handle(ctx context.Context, ev *platform.Event) {
	log := h.deps.Logger.With("handler", h.name())
	msgs := h.deps.Config.Messages

	personaID, ok := subcommandArg(ev.Text)
	if !ok {
		replyOrLog(ctx, log, ev, msgs.Help)
		return
	}
	if !persona.ValidID(personaID) {
		replyOrLog(ctx, log, ev, msgs.InvalidPersonaID)
		return
	}

	// Precondition check now; it is re-checked when the content arrives
	// since the store may have changed while waiting.
	_, err := h.deps.Store.GetPersona(ctx, personaID)
	switch h.mode {
	case modeCreate:
		if err == nil {
			replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.PersonaExistsFmt, personaID))
			return
		}
		if !errors.Is(err, database.ErrPersonaNotFound) {
			log.ErrorContext(ctx, "Failed to check persona existence", "persona_id", personaID, "error", err)
			replyOrLog(ctx, log, ev, msgs.GeneralError)
			return
		}
	case modeUpdate:
		if errors.Is(err, database.ErrPersonaNotFound) {
			replyOrLog(ctx, log, ev, fmt.Sprintf(msgs.PersonaNotFoundFmt, personaID))
			return
		}
		if err != nil {
			log.ErrorContext(ctx, "Failed to check persona existence", "persona_id", personaID, "error", err)
			replyOrLog(ctx, log, ev, msgs.GeneralError)
			return
		}
	}

	timeout := time.Duration(h.deps.Config.Persona.ManageWaitTimeoutSeconds) * time.Second
	wait := h.deps.Waiter.Begin(session.KeyFor(ev))

	if err := ev.Reply(ctx, fmt.Sprintf(msgs.SendContentFmt, personaID, int(timeout.Seconds()))); err != nil {
		log.ErrorContext(ctx, "Failed to send content prompt, aborting session", "persona_id", personaID, "error", err)
		wait.End()
		return
	}

	log.InfoContext(ctx, "Waiting for persona content",
		"persona_id", personaID, "origin", ev.OriginKey(), "sender_id", ev.SenderID, "timeout", timeout)

	go h.runSession(ctx, log, wait, ev, personaID, timeout)
}

// runSession waits for the caller's next message and applies it. Errors
// from the content are reported on the content message; timeout and
// supersession are reported on the original command message.
func (h manageHandler) runSession(ctx context.Context, log *slog.Logger, wait *session.Wait, command *platform.Event, personaID string, timeout time.Duration) {
	defer wait.End()
	msgs := h.deps.Config.Messages

	content, err := wait.Next(ctx, timeout)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTimeout):
			log.InfoContext(ctx, "Session timed out, nothing mutated", "persona_id", personaID, "origin", command.OriginKey())
			replyOrLog(ctx, log, command, msgs.ManageTimeout)
		case errors.Is(err, session.ErrSuperseded):
			log.InfoContext(ctx, "Session superseded by a newer one", "persona_id", personaID, "origin", command.OriginKey())
			replyOrLog(ctx, log, command, msgs.ManageCancelled)
		default:
			// Shutdown; stay quiet.
			log.WarnContext(ctx, "Session aborted", "persona_id", personaID, "error", err)
		}
		return
	}

	if err := h.apply(ctx, content, personaID); err != nil {
		log.WarnContext(ctx, "Persona content rejected", "persona_id", personaID, "error", err)
		replyOrLog(ctx, log, content, fmt.Sprintf(msgs.ManageFailedFmt, err))
		return
	}

	confirm := msgs.PersonaCreatedFmt
	if h.mode == modeUpdate {
		confirm = msgs.PersonaUpdatedFmt
	}
	log.InfoContext(ctx, "Persona saved", "persona_id", personaID, "mode", h.name())
	replyOrLog(ctx, log, content, fmt.Sprintf(confirm, personaID))
}

// apply extracts, parses, and persists the persona content carried by the
// follow-up event.
func (h manageHandler) apply(ctx context.Context, content *platform.Event, personaID string) error {
	raw, err := persona.ExtractContent(ctx, content)
	if err != nil {
		return err
	}

	payload, err := persona.ParsePayload(raw)
	if err != nil {
		return err
	}

	p := &database.Persona{
		ID:           personaID,
		SystemPrompt: payload.SystemPrompt,
		BeginDialogs: payload.BeginDialogs,
	}

	if h.mode == modeCreate {
		return h.deps.Store.CreatePersona(ctx, p)
	}
	return h.deps.Store.UpdatePersona(ctx, p)
}
