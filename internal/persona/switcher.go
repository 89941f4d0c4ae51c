package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/platform"
)

// Scope determines how broadly a persona switch applies.
type Scope string

const (
	// ScopeConversation rebinds only the origin's current conversation.
	ScopeConversation Scope = "conversation"
	// ScopeSession also records the persona as the origin's default.
	ScopeSession Scope = "session"
	// ScopeGlobal records the persona as the process-wide default.
	ScopeGlobal Scope = "global"
)

// GlobalScopeKey is the scoped-settings key for the process-wide default.
const GlobalScopeKey = "global"

// switchStore is the slice of the store the switcher reads and mutates.
type switchStore interface {
	GetPersona(ctx context.Context, id string) (*database.Persona, error)
	GetCurrentConversation(ctx context.Context, originKey string) (*database.Conversation, error)
	CreateConversation(ctx context.Context, originKey, personaID string) (*database.Conversation, error)
	UpdateConversationPersona(ctx context.Context, conversationID, personaID string, clearHistory bool) error
	GetScopedSettings(ctx context.Context, scopeKey string) (*database.ScopedSettings, error)
	SaveScopedSettings(ctx context.Context, scopeKey string, settings *database.ScopedSettings) error
}

// profileSyncer pushes nickname and avatar after a switch.
type profileSyncer interface {
	MaybeSync(ctx context.Context, ev *platform.Event, personaID string, force bool)
}

// Switcher applies persona switches at the configured scope and resolves
// the active persona for an origin.
type Switcher struct {
	store        switchStore
	sync         profileSyncer
	scope        Scope
	clearContext bool
	logger       *slog.Logger
}

// NewSwitcher creates a switch orchestrator. scope selects how broadly
// switches apply; clearContext wipes conversation history on rebinds.
func NewSwitcher(store switchStore, sync profileSyncer, scope Scope, clearContext bool, logger *slog.Logger) *Switcher {
	return &Switcher{
		store:        store,
		sync:         sync,
		scope:        scope,
		clearContext: clearContext,
		logger:       logger.With("component", "persona_switcher"),
	}
}

// Switch points the configured scope at personaID. The persona must exist;
// nothing is mutated otherwise. It returns the announce text to emit, empty
// for a silent switch.
func (s *Switcher) Switch(ctx context.Context, ev *platform.Event, personaID, announce string) (string, error) {
	if _, err := s.store.GetPersona(ctx, personaID); err != nil {
		return "", err
	}

	origin := ev.OriginKey()

	switch s.scope {
	case ScopeSession:
		if err := s.setDefaultPersonality(ctx, origin, personaID); err != nil {
			return "", err
		}
		if err := s.rebindConversation(ctx, origin, personaID, false); err != nil {
			return "", err
		}
	case ScopeGlobal:
		if err := s.setDefaultPersonality(ctx, GlobalScopeKey, personaID); err != nil {
			return "", err
		}
		if err := s.rebindConversation(ctx, origin, personaID, false); err != nil {
			return "", err
		}
	default: // ScopeConversation
		if err := s.rebindConversation(ctx, origin, personaID, true); err != nil {
			return "", err
		}
	}

	s.sync.MaybeSync(ctx, ev, personaID, false)

	s.logger.InfoContext(ctx, "Persona switched",
		"persona_id", personaID, "scope", string(s.scope), "origin", origin)
	return announce, nil
}

// ActivePersonaID resolves the persona currently in effect for an origin:
// the current conversation's binding, then the origin default, then the
// global default. Empty means none is set anywhere.
func (s *Switcher) ActivePersonaID(ctx context.Context, origin string) (string, error) {
	conversation, err := s.store.GetCurrentConversation(ctx, origin)
	if err != nil {
		return "", err
	}
	if conversation != nil && conversation.PersonaID != "" {
		return conversation.PersonaID, nil
	}

	for _, scopeKey := range []string{origin, GlobalScopeKey} {
		settings, err := s.store.GetScopedSettings(ctx, scopeKey)
		if err != nil {
			return "", err
		}
		if id := settings.ProviderSettings.DefaultPersonality; id != "" {
			return id, nil
		}
	}

	return "", nil
}

// setDefaultPersonality records personaID as the default in the scope's
// settings tree, preserving the other settings stored there.
func (s *Switcher) setDefaultPersonality(ctx context.Context, scopeKey, personaID string) error {
	settings, err := s.store.GetScopedSettings(ctx, scopeKey)
	if err != nil {
		return fmt.Errorf("failed to load settings for scope %s: %w", scopeKey, err)
	}

	settings.ProviderSettings.DefaultPersonality = personaID

	if err := s.store.SaveScopedSettings(ctx, scopeKey, settings); err != nil {
		return fmt.Errorf("failed to save settings for scope %s: %w", scopeKey, err)
	}
	return nil
}

// rebindConversation points the origin's current conversation at
// personaID. With createIfMissing a pre-bound conversation is created when
// the origin has none; otherwise a missing conversation is left alone.
func (s *Switcher) rebindConversation(ctx context.Context, origin, personaID string, createIfMissing bool) error {
	conversation, err := s.store.GetCurrentConversation(ctx, origin)
	if err != nil {
		return err
	}

	if conversation == nil {
		if !createIfMissing {
			return nil
		}
		if _, err := s.store.CreateConversation(ctx, origin, personaID); err != nil {
			return fmt.Errorf("failed to create conversation for %s: %w", origin, err)
		}
		return nil
	}

	err = s.store.UpdateConversationPersona(ctx, conversation.ID, personaID, s.clearContext)
	if errors.Is(err, database.ErrConversationNotFound) {
		// The conversation vanished between read and write; recreate.
		_, err = s.store.CreateConversation(ctx, origin, personaID)
	}
	if err != nil {
		return fmt.Errorf("failed to rebind conversation for %s: %w", origin, err)
	}
	return nil
}
