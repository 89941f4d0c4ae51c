package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Persona is a stored chat personality: a system prompt plus optional
// priming dialog turns injected before real history.
type Persona struct {
	ID           string     `db:"id"`
	SystemPrompt string     `db:"system_prompt"`
	BeginDialogs StringList `db:"begin_dialogs"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Conversation is one chat thread bound to an origin. PersonaID may be
// empty when the conversation was created before any persona was chosen.
type Conversation struct {
	ID        string      `db:"id"`
	OriginKey string      `db:"origin_key"`
	PersonaID string      `db:"persona_id"`
	History   DialogTurns `db:"history"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

// Dialog turn roles. They mirror the wire roles of the AI provider so
// histories replay without translation.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// DialogTurn is one exchange entry in a conversation history.
type DialogTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProviderSettings carries per-scope AI provider preferences.
type ProviderSettings struct {
	DefaultPersonality string `json:"default_personality"`
}

// ScopedSettings is the JSON settings tree stored per scope key. A scope
// key is an origin key or the process-wide "global" key.
type ScopedSettings struct {
	Admins           []string         `json:"admins,omitempty"`
	ProviderSettings ProviderSettings `json:"provider_settings"`
}

// StringList stores a JSON-encoded array of strings in a TEXT column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	return scanJSON(src, l, "string list")
}

// DialogTurns stores a JSON-encoded array of dialog turns in a TEXT column.
type DialogTurns []DialogTurn

// Value implements driver.Valuer.
func (t DialogTurns) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dialog turns: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (t *DialogTurns) Scan(src any) error {
	return scanJSON(src, t, "dialog turns")
}

// scanJSON decodes a TEXT or BLOB column holding JSON into dst.
func scanJSON(src, dst any, what string) error {
	if src == nil {
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, what)
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}
