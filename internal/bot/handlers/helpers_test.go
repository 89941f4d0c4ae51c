package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/edgard/personabot/internal/bot/handlers"
	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/profilesync"
	"github.com/edgard/personabot/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory database.Store for handler tests.
type memStore struct {
	mu            sync.Mutex
	personas      map[string]*database.Persona
	conversations map[string]*database.Conversation
	current       map[string]string
	settings      map[string]*database.ScopedSettings
	convSeq       int
}

func newMemStore() *memStore {
	return &memStore{
		personas:      make(map[string]*database.Persona),
		conversations: make(map[string]*database.Conversation),
		current:       make(map[string]string),
		settings:      make(map[string]*database.ScopedSettings),
	}
}

func clonePersona(p *database.Persona) *database.Persona {
	cp := *p
	cp.BeginDialogs = append(database.StringList(nil), p.BeginDialogs...)

	return &cp
}

func cloneConversation(c *database.Conversation) *database.Conversation {
	cp := *c
	cp.History = append(database.DialogTurns(nil), c.History...)

	return &cp
}

func cloneSettings(s *database.ScopedSettings) *database.ScopedSettings {
	cp := *s
	cp.Admins = append([]string(nil), s.Admins...)

	return &cp
}

func (m *memStore) Ping(_ context.Context) error { return nil }

func (m *memStore) CreatePersona(_ context.Context, p *database.Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.personas[p.ID]; ok {
		return database.ErrPersonaExists
	}
	cp := clonePersona(p)
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.personas[p.ID] = cp

	return nil
}

func (m *memStore) UpdatePersona(_ context.Context, p *database.Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.personas[p.ID]
	if !ok {
		return database.ErrPersonaNotFound
	}
	cp := clonePersona(p)
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now()
	m.personas[p.ID] = cp

	return nil
}

func (m *memStore) GetPersona(_ context.Context, id string) (*database.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.personas[id]
	if !ok {
		return nil, database.ErrPersonaNotFound
	}

	return clonePersona(p), nil
}

func (m *memStore) ListPersonas(_ context.Context) ([]database.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.personas))
	for id := range m.personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]database.Persona, 0, len(ids))
	for _, id := range ids {
		out = append(out, *clonePersona(m.personas[id]))
	}

	return out, nil
}

func (m *memStore) DeletePersona(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.personas[id]; !ok {
		return database.ErrPersonaNotFound
	}
	delete(m.personas, id)

	return nil
}

func (m *memStore) GetCurrentConversation(_ context.Context, originKey string) (*database.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.current[originKey]
	if !ok {
		return nil, nil
	}

	return cloneConversation(m.conversations[id]), nil
}

func (m *memStore) CreateConversation(_ context.Context, originKey, personaID string) (*database.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.convSeq++
	c := &database.Conversation{
		ID:        fmt.Sprintf("conv-%d", m.convSeq),
		OriginKey: originKey,
		PersonaID: personaID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.conversations[c.ID] = c
	m.current[originKey] = c.ID

	return cloneConversation(c), nil
}

func (m *memStore) UpdateConversationPersona(_ context.Context, conversationID, personaID string, clearHistory bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return database.ErrConversationNotFound
	}
	c.PersonaID = personaID
	if clearHistory {
		c.History = nil
	}
	c.UpdatedAt = time.Now()

	return nil
}

func (m *memStore) SaveConversationHistory(_ context.Context, conversationID string, history database.DialogTurns) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return database.ErrConversationNotFound
	}
	c.History = append(database.DialogTurns(nil), history...)
	c.UpdatedAt = time.Now()

	return nil
}

func (m *memStore) GetScopedSettings(_ context.Context, scopeKey string) (*database.ScopedSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[scopeKey]
	if !ok {
		return &database.ScopedSettings{}, nil
	}

	return cloneSettings(s), nil
}

func (m *memStore) SaveScopedSettings(_ context.Context, scopeKey string, settings *database.ScopedSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[scopeKey] = cloneSettings(settings)

	return nil
}

func (m *memStore) RunSQLMaintenance(_ context.Context) error { return nil }

// recordedReply pairs a reply text with the message that triggered it.
type recordedReply struct {
	messageID string
	text      string
}

// recordingAdapter captures replies for assertions.
type recordingAdapter struct {
	mu      sync.Mutex
	fileURL string
	replies []recordedReply
}

func (a *recordingAdapter) Name() string   { return "test" }
func (a *recordingAdapter) SelfID() string { return "bot1" }

func (a *recordingAdapter) Reply(_ context.Context, ev *platform.Event, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append(a.replies, recordedReply{messageID: ev.MessageID, text: text})

	return nil
}

func (a *recordingAdapter) ResolveFileURL(_ context.Context, _ platform.Part) (string, error) {
	if a.fileURL == "" {
		return "", errors.New("no file url configured")
	}

	return a.fileURL, nil
}

func (a *recordingAdapter) snapshot() []recordedReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]recordedReply(nil), a.replies...)
}

// waitForReplies polls until the adapter has recorded at least n replies,
// covering handler work that finishes on a background goroutine.
func waitForReplies(t *testing.T, a *recordingAdapter, n int) []recordedReply {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		replies := a.snapshot()
		if len(replies) >= n {
			return replies
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d replies, got %v", n, replies)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// newTestDeps builds handler dependencies around the given store. Tests
// adjust individual fields before constructing the handler under test.
func newTestDeps(t *testing.T, store database.Store) handlers.HandlerDeps {
	t.Helper()

	log := discardLogger()
	syncer := profilesync.New(false, false, "{persona_id}", t.TempDir(), log)
	cfg := &config.Config{
		Persona: config.PersonaConfig{
			AutoSwitchScope:          "conversation",
			EnableKeywordSwitching:   true,
			ManageWaitTimeoutSeconds: 1,
		},
		Gemini:   config.GeminiConfig{HistoryLimit: 20},
		Messages: config.DefaultMessages,
		Commands: config.DefaultCommands,
	}

	return handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Waiter:   session.NewController(log),
		Gate:     persona.NewGate(false, nil, store, log),
		Matcher:  persona.NewMatcher(nil),
		Switcher: persona.NewSwitcher(store, syncer, persona.ScopeConversation, false, log),
		Syncer:   syncer,
	}
}

// commandEvent builds an inbound event carrying text from the standard test
// origin.
func commandEvent(adapter *recordingAdapter, text string) *platform.Event {
	return &platform.Event{
		Platform:   "test",
		SelfID:     "bot1",
		ChatID:     "chat1",
		MessageID:  "1",
		SenderID:   "user1",
		SenderName: "User One",
		Text:       text,
		Adapter:    adapter,
	}
}
