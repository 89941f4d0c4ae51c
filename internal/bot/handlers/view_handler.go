package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/platform"
)

// viewPromptPreviewLimit caps how much of a system prompt the view
// subcommand echoes back into chat.
const viewPromptPreviewLimit = 600

// NewViewHandler returns a handler for the view subcommand.
func NewViewHandler(deps HandlerDeps) platform.HandlerFunc {
	return viewHandler{deps}.Handle
}

// viewHandler processes the view subcommand using injected dependencies.
type viewHandler struct {
	deps HandlerDeps
}

func (h viewHandler) Handle(ctx context.Context, ev *platform.Event) {
	log := h.deps.Logger.With("handler", "view")

	id, ok := subcommandArg(ev.Text)
	if !ok {
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.Help)
		return
	}

	p, err := h.deps.Store.GetPersona(ctx, id)
	switch {
	case errors.Is(err, database.ErrPersonaNotFound):
		replyOrLog(ctx, log, ev, fmt.Sprintf(h.deps.Config.Messages.PersonaNotFoundFmt, id))
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to get persona", "persona_id", id, "error", err)
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.GeneralError)
		return
	}

	prompt := p.SystemPrompt
	if runes := []rune(prompt); len(runes) > viewPromptPreviewLimit {
		prompt = string(runes[:viewPromptPreviewLimit]) + "..."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Persona %s\n", p.ID)
	fmt.Fprintf(&sb, "System prompt:\n%s\n", prompt)
	fmt.Fprintf(&sb, "Begin dialogs: %d", len(p.BeginDialogs))
	if h.deps.Syncer.HasAvatar(p.ID) {
		sb.WriteString("\nAvatar: saved")
	}

	log.InfoContext(ctx, "Viewing persona", "persona_id", id, "chat_id", ev.ChatID)
	replyOrLog(ctx, log, ev, sb.String())
}

// subcommandArg extracts the first argument after "/persona <sub>".
func subcommandArg(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return "", false
	}
	return fields[2], true
}
