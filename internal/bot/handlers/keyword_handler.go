package handlers

import (
	"context"
	"strings"

	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/platform"
)

// NewKeywordHandler returns the handler that scans plain messages for
// keyword-triggered persona switches.
func NewKeywordHandler(deps HandlerDeps) platform.HandlerFunc {
	return keywordHandler{deps}.Handle
}

// keywordHandler matches message text against the mapping rules and runs
// the switch orchestrator on the first hit. It is passive: failures are
// logged, never replied.
type keywordHandler struct {
	deps HandlerDeps
}

func (h keywordHandler) Handle(ctx context.Context, ev *platform.Event) {
	if !h.deps.Config.Persona.EnableKeywordSwitching {
		return
	}
	if strings.TrimSpace(ev.Text) == "" || h.deps.Matcher.Empty() {
		return
	}

	rule, ok := h.deps.Matcher.Match(ev.Text)
	if !ok {
		return
	}

	log := h.deps.Logger.With("handler", "keyword_switch")

	var announce string
	switch {
	case rule.ReplyTemplate != "":
		announce = persona.FormatTemplate(rule.ReplyTemplate, rule.PersonaID)
	case h.deps.Config.Persona.EnableAutoSwitchAnnounce:
		announce = persona.FormatTemplate(h.deps.Config.Messages.AutoSwitchAnnounce, rule.PersonaID)
	}

	reply, err := h.deps.Switcher.Switch(ctx, ev, rule.PersonaID, announce)
	if err != nil {
		log.WarnContext(ctx, "Keyword switch failed",
			"keyword", rule.Keyword, "persona_id", rule.PersonaID, "origin", ev.OriginKey(), "error", err)
		return
	}

	log.InfoContext(ctx, "Keyword switch applied",
		"keyword", rule.Keyword, "persona_id", rule.PersonaID, "origin", ev.OriginKey())

	if reply != "" {
		replyOrLog(ctx, log, ev, reply)
	}
}
