package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/platform"
)

// Operation timeouts for the mention reply path.
const (
	aiProcessingTimeout = 2 * time.Minute
	dbSaveTimeout       = 5 * time.Second
)

// NewMentionHandler returns the handler that answers mentions and direct
// messages with a persona-steered AI reply. It no-ops when no Gemini
// client is configured.
func NewMentionHandler(deps HandlerDeps) platform.HandlerFunc {
	return mentionHandler{deps}.Handle
}

// mentionHandler generates AI replies using injected dependencies.
type mentionHandler struct {
	deps HandlerDeps
}

func (h mentionHandler) Handle(ctx context.Context, ev *platform.Event) {
	if h.deps.GeminiClient == nil {
		return
	}
	if !ev.Mentioned && !ev.IsDirect {
		return
	}

	log := h.deps.Logger.With("handler", "mention")

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.MentionEmptyPrompt)
		return
	}

	origin := ev.OriginKey()

	activeID, err := h.deps.Switcher.ActivePersonaID(ctx, origin)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve active persona", "origin", origin, "error", err)
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.GeneralError)
		return
	}

	var activePersona *database.Persona
	if activeID != "" {
		activePersona, err = h.deps.Store.GetPersona(ctx, activeID)
		if err != nil {
			// A stale binding is not fatal; fall back to the default
			// instruction.
			if !errors.Is(err, database.ErrPersonaNotFound) {
				log.WarnContext(ctx, "Failed to load active persona", "persona_id", activeID, "error", err)
			}
			activePersona = nil
		}
	}

	conversation, err := h.deps.Store.GetCurrentConversation(ctx, origin)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load conversation", "origin", origin, "error", err)
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.GeneralError)
		return
	}

	var history []database.DialogTurn
	if conversation != nil {
		history = conversation.History
	}

	if notifier, ok := ev.Adapter.(platform.TypingNotifier); ok {
		notifier.NotifyTyping(ctx, ev)
	}

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	reply, err := h.deps.GeminiClient.GenerateReply(aiCtx, activePersona, history, ev.Platform, ev.SenderName, text)
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "AI reply generation failed", "origin", origin, "persona_id", activeID, "error", err)
		replyOrLog(ctx, log, ev, h.deps.Config.Messages.GeneralError)
		return
	}

	replyOrLog(ctx, log, ev, reply)

	h.persistExchange(ctx, log, ev, conversation, activeID, text, reply)
}

// persistExchange appends the question and answer to the origin's current
// conversation, creating one on first contact, and trims history to the
// configured window. Persistence failures only cost context, so they are
// logged and swallowed.
func (h mentionHandler) persistExchange(ctx context.Context, log *slog.Logger, ev *platform.Event, conversation *database.Conversation, personaID, question, answer string) {
	saveCtx, cancel := context.WithTimeout(ctx, dbSaveTimeout)
	defer cancel()

	var err error
	if conversation == nil {
		conversation, err = h.deps.Store.CreateConversation(saveCtx, ev.OriginKey(), personaID)
		if err != nil {
			log.WarnContext(ctx, "Failed to create conversation for history", "origin", ev.OriginKey(), "error", err)
			return
		}
	}

	history := append(conversation.History,
		database.DialogTurn{Role: database.RoleUser, Content: formatHistoryEntry(ev.SenderName, question)},
		database.DialogTurn{Role: database.RoleModel, Content: answer},
	)

	if limit := h.deps.Config.Gemini.HistoryLimit * 2; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	if err := h.deps.Store.SaveConversationHistory(saveCtx, conversation.ID, history); err != nil {
		log.WarnContext(ctx, "Failed to save conversation history", "conversation_id", conversation.ID, "error", err)
	}
}

// formatHistoryEntry stores who said what, matching the format the model
// sees at generation time.
func formatHistoryEntry(senderName, text string) string {
	if senderName == "" {
		return text
	}
	return senderName + ": " + text
}
