package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgard/personabot/internal/platform"
)

// Validation errors surfaced verbatim to the user during persona create
// and update flows.
var (
	ErrNoContent           = errors.New("no text or supported file attachment found")
	ErrEmptyContent        = errors.New("persona content is empty")
	ErrUnsupportedFile     = errors.New("unsupported file type, accepted: .txt .md .json")
	ErrMissingSystemPrompt = errors.New("system_prompt is required and must be a non-empty string")
	ErrOddDialogCount      = errors.New("begin_dialogs must hold an even number of entries")
)

// Payload is the parsed persona content handed to the store.
type Payload struct {
	SystemPrompt string
	BeginDialogs []string
}

// ValidID reports whether id is safe to use as a persona id. Ids end up in
// file names for avatar assets, so only a conservative charset is allowed.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// supportedContentExts lists file extensions accepted as persona content.
var supportedContentExts = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
}

const contentFetchTimeout = 30 * time.Second

var contentClient = &http.Client{Timeout: contentFetchTimeout}

// ExtractContent returns the persona content carried by an event: its text
// when present, otherwise the bytes of the first file attachment. The first
// attachment decides; an unsupported extension fails rather than falling
// through to later parts.
func ExtractContent(ctx context.Context, ev *platform.Event) (string, error) {
	if strings.TrimSpace(ev.Text) != "" {
		return ev.Text, nil
	}

	for _, part := range ev.Parts {
		if part.Kind != platform.PartFile {
			continue
		}

		ext := strings.ToLower(filepath.Ext(part.Name))
		if !supportedContentExts[ext] {
			return "", fmt.Errorf("%w (got %q)", ErrUnsupportedFile, ext)
		}

		data, err := platform.FetchPartBytes(ctx, contentClient, ev.Adapter, part)
		if err != nil {
			return "", fmt.Errorf("failed to fetch content file %s: %w", part.Name, err)
		}
		return string(data), nil
	}

	return "", ErrNoContent
}

// ParsePayload turns raw persona content into a Payload. A JSON object is
// read as the structured form with a mandatory system_prompt and optional
// begin_dialogs; anything else, including bare JSON strings and numbers, is
// taken verbatim as the system prompt.
func ParsePayload(raw string) (Payload, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Payload{}, ErrEmptyContent
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil || obj == nil {
		return Payload{SystemPrompt: trimmed}, nil
	}

	var systemPrompt string
	if rawPrompt, ok := obj["system_prompt"]; ok {
		if err := json.Unmarshal(rawPrompt, &systemPrompt); err != nil {
			return Payload{}, ErrMissingSystemPrompt
		}
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return Payload{}, ErrMissingSystemPrompt
	}

	payload := Payload{SystemPrompt: systemPrompt}

	if rawDialogs, ok := obj["begin_dialogs"]; ok {
		var dialogs []string
		if err := json.Unmarshal(rawDialogs, &dialogs); err != nil {
			return Payload{}, fmt.Errorf("begin_dialogs must be an array of strings: %w", err)
		}
		if len(dialogs)%2 != 0 {
			return Payload{}, ErrOddDialogCount
		}
		payload.BeginDialogs = dialogs
	}

	return payload, nil
}
