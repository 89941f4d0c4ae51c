package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Sentinel errors returned by Store operations. Callers match them with
// errors.Is to distinguish expected conditions from real failures.
var (
	ErrPersonaNotFound      = errors.New("persona not found")
	ErrPersonaExists        = errors.New("persona already exists")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreatePersona inserts a new persona. Returns ErrPersonaExists when
	// the id is already taken.
	CreatePersona(ctx context.Context, persona *Persona) error

	// UpdatePersona replaces the content of an existing persona. Returns
	// ErrPersonaNotFound when the id is unknown.
	UpdatePersona(ctx context.Context, persona *Persona) error

	// GetPersona retrieves a persona by id. Returns ErrPersonaNotFound
	// when the id is unknown.
	GetPersona(ctx context.Context, id string) (*Persona, error)

	// ListPersonas retrieves all personas ordered by id.
	ListPersonas(ctx context.Context) ([]Persona, error)

	// DeletePersona removes a persona by id. Returns ErrPersonaNotFound
	// when the id is unknown.
	DeletePersona(ctx context.Context, id string) error

	// GetCurrentConversation retrieves the conversation an origin
	// currently points at. Returns nil, nil when the origin has none.
	GetCurrentConversation(ctx context.Context, originKey string) (*Conversation, error)

	// CreateConversation inserts a new conversation bound to personaID and
	// points the origin at it.
	CreateConversation(ctx context.Context, originKey, personaID string) (*Conversation, error)

	// UpdateConversationPersona rebinds a conversation to personaID,
	// optionally clearing its history.
	UpdateConversationPersona(ctx context.Context, conversationID, personaID string, clearHistory bool) error

	// SaveConversationHistory replaces a conversation's history.
	SaveConversationHistory(ctx context.Context, conversationID string, history DialogTurns) error

	// GetScopedSettings retrieves the settings tree for a scope key. A
	// missing row yields an empty settings tree, never nil.
	GetScopedSettings(ctx context.Context, scopeKey string) (*ScopedSettings, error)

	// SaveScopedSettings inserts or replaces the settings tree for a
	// scope key.
	SaveScopedSettings(ctx context.Context, scopeKey string, settings *ScopedSettings) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreatePersona inserts a new persona inside a transaction, failing with
// ErrPersonaExists when the id was taken in the meantime.
func (s *sqlxStore) CreatePersona(ctx context.Context, persona *Persona) error {
	if err := validatePersona(persona); err != nil {
		return err
	}

	now := time.Now().UTC()
	persona.CreatedAt = now
	persona.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for persona create", "persona_id", persona.ID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM personas WHERE id = ? LIMIT 1;`, persona.ID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrPersonaExists, persona.ID)
	case !errors.Is(err, sql.ErrNoRows):
		s.logger.ErrorContext(ctx, "Failed to check persona existence", "persona_id", persona.ID, "error", err)
		return fmt.Errorf("failed to check persona existence: %w", err)
	}

	query := `
        INSERT INTO personas (id, system_prompt, begin_dialogs, created_at, updated_at)
        VALUES (:id, :system_prompt, :begin_dialogs, :created_at, :updated_at);
    `
	if _, err := tx.NamedExecContext(ctx, query, persona); err != nil {
		s.logger.ErrorContext(ctx, "Error inserting persona", "persona_id", persona.ID, "error", err)
		return fmt.Errorf("failed to insert persona %s: %w", persona.ID, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit persona create", "persona_id", persona.ID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Persona created", "persona_id", persona.ID)
	return nil
}

// UpdatePersona replaces the content of an existing persona.
func (s *sqlxStore) UpdatePersona(ctx context.Context, persona *Persona) error {
	if err := validatePersona(persona); err != nil {
		return err
	}

	persona.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE personas
        SET system_prompt = :system_prompt, begin_dialogs = :begin_dialogs, updated_at = :updated_at
        WHERE id = :id;
    `
	result, err := s.db.NamedExecContext(ctx, query, persona)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating persona", "persona_id", persona.ID, "error", err)
		return fmt.Errorf("failed to update persona %s: %w", persona.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrPersonaNotFound, persona.ID)
	}

	s.logger.DebugContext(ctx, "Persona updated", "persona_id", persona.ID)
	return nil
}

// GetPersona retrieves a persona by id.
func (s *sqlxStore) GetPersona(ctx context.Context, id string) (*Persona, error) {
	if id == "" {
		return nil, fmt.Errorf("persona id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var persona Persona
	query := `
        SELECT id, system_prompt, begin_dialogs, created_at, updated_at
        FROM personas
        WHERE id = ?
        LIMIT 1;
    `
	err := s.db.GetContext(ctx, &persona, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, id)
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting persona", "persona_id", id, "error", err)
		return nil, fmt.Errorf("failed to get persona %s: %w", id, err)
	}

	return &persona, nil
}

// ListPersonas retrieves all personas ordered by id.
func (s *sqlxStore) ListPersonas(ctx context.Context) ([]Persona, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var personas []Persona
	query := `
        SELECT id, system_prompt, begin_dialogs, created_at, updated_at
        FROM personas
        ORDER BY id;
    `
	if err := s.db.SelectContext(ctx, &personas, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing personas", "error", err)
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}

	return personas, nil
}

// DeletePersona removes a persona by id.
func (s *sqlxStore) DeletePersona(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("persona id cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE id = ?;`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting persona", "persona_id", id, "error", err)
		return fmt.Errorf("failed to delete persona %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrPersonaNotFound, id)
	}

	s.logger.InfoContext(ctx, "Persona deleted", "persona_id", id)
	return nil
}

// GetCurrentConversation retrieves the conversation an origin currently
// points at. Returns nil, nil when the origin has none.
func (s *sqlxStore) GetCurrentConversation(ctx context.Context, originKey string) (*Conversation, error) {
	if originKey == "" {
		return nil, fmt.Errorf("origin key cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var conversation Conversation
	query := `
        SELECT c.id, c.origin_key, c.persona_id, c.history, c.created_at, c.updated_at
        FROM conversations c
        JOIN current_conversations cur ON cur.conversation_id = c.id
        WHERE cur.origin_key = ?
        LIMIT 1;
    `
	err := s.db.GetContext(ctx, &conversation, query, originKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting current conversation", "origin_key", originKey, "error", err)
		return nil, fmt.Errorf("failed to get current conversation for %s: %w", originKey, err)
	}

	return &conversation, nil
}

// CreateConversation inserts a new conversation bound to personaID and
// points the origin at it, atomically.
func (s *sqlxStore) CreateConversation(ctx context.Context, originKey, personaID string) (*Conversation, error) {
	if originKey == "" {
		return nil, fmt.Errorf("origin key cannot be empty")
	}

	now := time.Now().UTC()
	conversation := &Conversation{
		ID:        uuid.NewString(),
		OriginKey: originKey,
		PersonaID: personaID,
		History:   DialogTurns{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for conversation create", "origin_key", originKey, "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	insert := `
        INSERT INTO conversations (id, origin_key, persona_id, history, created_at, updated_at)
        VALUES (:id, :origin_key, :persona_id, :history, :created_at, :updated_at);
    `
	if _, err := tx.NamedExecContext(ctx, insert, conversation); err != nil {
		s.logger.ErrorContext(ctx, "Error inserting conversation", "origin_key", originKey, "error", err)
		return nil, fmt.Errorf("failed to insert conversation for %s: %w", originKey, err)
	}

	point := `
        INSERT INTO current_conversations (origin_key, conversation_id)
        VALUES (?, ?)
        ON CONFLICT (origin_key) DO UPDATE SET conversation_id = excluded.conversation_id;
    `
	if _, err := tx.ExecContext(ctx, point, originKey, conversation.ID); err != nil {
		s.logger.ErrorContext(ctx, "Error pointing origin at conversation", "origin_key", originKey, "error", err)
		return nil, fmt.Errorf("failed to set current conversation for %s: %w", originKey, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit conversation create", "origin_key", originKey, "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Conversation created", "origin_key", originKey, "conversation_id", conversation.ID, "persona_id", personaID)
	return conversation, nil
}

// UpdateConversationPersona rebinds a conversation to personaID, optionally
// clearing its history.
func (s *sqlxStore) UpdateConversationPersona(ctx context.Context, conversationID, personaID string, clearHistory bool) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}

	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	if clearHistory {
		query := `UPDATE conversations SET persona_id = ?, history = '[]', updated_at = ? WHERE id = ?;`
		result, err = s.db.ExecContext(ctx, query, personaID, now, conversationID)
	} else {
		query := `UPDATE conversations SET persona_id = ?, updated_at = ? WHERE id = ?;`
		result, err = s.db.ExecContext(ctx, query, personaID, now, conversationID)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating conversation persona", "conversation_id", conversationID, "error", err)
		return fmt.Errorf("failed to update conversation %s: %w", conversationID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	s.logger.DebugContext(ctx, "Conversation persona updated",
		"conversation_id", conversationID, "persona_id", personaID, "history_cleared", clearHistory)
	return nil
}

// SaveConversationHistory replaces a conversation's history.
func (s *sqlxStore) SaveConversationHistory(ctx context.Context, conversationID string, history DialogTurns) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}

	query := `UPDATE conversations SET history = ?, updated_at = ? WHERE id = ?;`
	result, err := s.db.ExecContext(ctx, query, history, time.Now().UTC(), conversationID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving conversation history", "conversation_id", conversationID, "error", err)
		return fmt.Errorf("failed to save history for conversation %s: %w", conversationID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	return nil
}

// GetScopedSettings retrieves the settings tree for a scope key. A missing
// row yields an empty settings tree, never nil.
func (s *sqlxStore) GetScopedSettings(ctx context.Context, scopeKey string) (*ScopedSettings, error) {
	if scopeKey == "" {
		return nil, fmt.Errorf("scope key cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT settings FROM scoped_settings WHERE scope_key = ? LIMIT 1;`, scopeKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &ScopedSettings{}, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting scoped settings", "scope_key", scopeKey, "error", err)
		return nil, fmt.Errorf("failed to get scoped settings for %s: %w", scopeKey, err)
	}

	settings := &ScopedSettings{}
	if err := json.Unmarshal([]byte(raw), settings); err != nil {
		s.logger.ErrorContext(ctx, "Error decoding scoped settings", "scope_key", scopeKey, "error", err)
		return nil, fmt.Errorf("failed to decode scoped settings for %s: %w", scopeKey, err)
	}

	return settings, nil
}

// SaveScopedSettings inserts or replaces the settings tree for a scope key.
func (s *sqlxStore) SaveScopedSettings(ctx context.Context, scopeKey string, settings *ScopedSettings) error {
	if scopeKey == "" {
		return fmt.Errorf("scope key cannot be empty")
	}
	if settings == nil {
		return fmt.Errorf("cannot save nil settings")
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode scoped settings: %w", err)
	}

	query := `
        INSERT INTO scoped_settings (scope_key, settings, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT (scope_key) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at;
    `
	if _, err := s.db.ExecContext(ctx, query, scopeKey, string(data), time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error saving scoped settings", "scope_key", scopeKey, "error", err)
		return fmt.Errorf("failed to save scoped settings for %s: %w", scopeKey, err)
	}

	s.logger.DebugContext(ctx, "Scoped settings saved", "scope_key", scopeKey)
	return nil
}

// RunSQLMaintenance executes ANALYZE and VACUUM on the SQLite database.
// VACUUM must run outside a transaction in SQLite.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled before starting maintenance", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (ANALYZE, VACUUM)...")

	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.WarnContext(ctx, "ANALYZE failed, continuing with VACUUM", "error", err)
	}

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully")
	return nil
}

// validatePersona checks the fields persisted for a persona.
func validatePersona(persona *Persona) error {
	if persona == nil {
		return fmt.Errorf("cannot save nil persona")
	}
	if persona.ID == "" {
		return fmt.Errorf("persona must have a non-empty id")
	}
	if persona.SystemPrompt == "" {
		return fmt.Errorf("persona must have a non-empty system prompt")
	}
	if len(persona.BeginDialogs)%2 != 0 {
		return fmt.Errorf("persona begin dialogs must pair user and assistant turns")
	}
	return nil
}
