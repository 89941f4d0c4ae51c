// Package profilesync keeps the bot's platform profile (nickname, avatar)
// aligned with the active persona, de-duplicating pushes per bot identity.
package profilesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/platform"
)

const (
	// nicknameMaxRunes is the longest nickname pushed to any platform.
	nicknameMaxRunes = 60
	// avatarExt is the extension every stored avatar asset gets, whatever
	// the source image format was.
	avatarExt    = ".jpg"
	fetchTimeout = 30 * time.Second
)

// Errors surfaced verbatim to the user by the avatar command.
var (
	ErrNoImage           = errors.New("no image or file attachment found")
	ErrUnsupportedAvatar = errors.New("unsupported avatar file extension, accepted: .jpg .jpeg .png .gif .webp")
)

// supportedAvatarExts lists file extensions accepted as avatar sources.
var supportedAvatarExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Syncer pushes persona nicknames and avatars to platform adapters that
// expose the matching capabilities, remembering the last persona pushed
// per bot identity to avoid redundant API calls.
type Syncer struct {
	syncNickname     bool
	syncAvatar       bool
	nicknameTemplate string
	avatarDir        string
	client           *http.Client
	logger           *slog.Logger

	mu     sync.Mutex
	synced map[string]string // bot key -> last persona id applied
}

// New creates a profile syncer storing avatar assets under dataDir/avatars.
func New(syncNickname, syncAvatar bool, nicknameTemplate, dataDir string, logger *slog.Logger) *Syncer {
	return &Syncer{
		syncNickname:     syncNickname,
		syncAvatar:       syncAvatar,
		nicknameTemplate: nicknameTemplate,
		avatarDir:        filepath.Join(dataDir, "avatars"),
		client:           &http.Client{Timeout: fetchTimeout},
		logger:           logger.With("component", "profile_sync"),
		synced:           make(map[string]string),
	}
}

// FormatNickname renders the nickname template for a persona, falling back
// to the raw id when the template yields only whitespace, and truncating
// to the platform-safe maximum.
func FormatNickname(template, personaID string) string {
	name := persona.FormatTemplate(template, personaID)
	if strings.TrimSpace(name) == "" {
		name = personaID
	}
	if runes := []rune(name); len(runes) > nicknameMaxRunes {
		name = string(runes[:nicknameMaxRunes])
	}
	return name
}

// MaybeSync pushes the persona's nickname and avatar to the event's
// adapter. It is a no-op when the adapter exposes no profile capabilities,
// when syncing is disabled and not forced, or when the persona was already
// pushed for this bot identity. Push failures are logged, never returned:
// profile sync must not break the switch that triggered it.
func (s *Syncer) MaybeSync(ctx context.Context, ev *platform.Event, personaID string, force bool) {
	nicknameSetter, canNickname := ev.Adapter.(platform.NicknameSetter)
	avatarSetter, canAvatar := ev.Adapter.(platform.AvatarSetter)
	if !canNickname && !canAvatar {
		s.logger.DebugContext(ctx, "Adapter exposes no profile capabilities, skipping sync", "platform", ev.Platform)
		return
	}

	if !force && !s.syncNickname && !s.syncAvatar {
		return
	}

	botKey := ev.BotKey()
	if !force && s.lastSynced(botKey) == personaID {
		s.logger.DebugContext(ctx, "Profile already synced, skipping", "bot_key", botKey, "persona_id", personaID)
		return
	}

	applied := false

	if s.syncNickname || force {
		if canNickname {
			name := FormatNickname(s.nicknameTemplate, personaID)
			if err := nicknameSetter.SetBotNickname(ctx, name); err != nil {
				s.logger.WarnContext(ctx, "Nickname push failed", "bot_key", botKey, "persona_id", personaID, "error", err)
			} else {
				s.logger.DebugContext(ctx, "Nickname pushed", "bot_key", botKey, "nickname", name)
				applied = true
			}
		} else {
			s.logger.DebugContext(ctx, "Adapter cannot set nicknames, skipping nickname push", "platform", ev.Platform)
		}
	}

	if s.syncAvatar || force {
		if canAvatar {
			image, err := os.ReadFile(s.AvatarPath(personaID))
			switch {
			case errors.Is(err, fs.ErrNotExist):
				s.logger.DebugContext(ctx, "No avatar asset for persona, skipping avatar push", "persona_id", personaID)
			case err != nil:
				s.logger.WarnContext(ctx, "Failed to read avatar asset", "persona_id", personaID, "error", err)
			default:
				if err := avatarSetter.SetBotAvatar(ctx, image); err != nil {
					s.logger.WarnContext(ctx, "Avatar push failed", "bot_key", botKey, "persona_id", personaID, "error", err)
				} else {
					s.logger.DebugContext(ctx, "Avatar pushed", "bot_key", botKey, "persona_id", personaID)
					applied = true
				}
			}
		} else {
			s.logger.DebugContext(ctx, "Adapter cannot set avatars, skipping avatar push", "platform", ev.Platform)
		}
	}

	// Only a successful push marks the persona as synced; failed attempts
	// stay retryable on the next switch.
	if applied {
		s.mu.Lock()
		s.synced[botKey] = personaID
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "Profile synced", "bot_key", botKey, "persona_id", personaID)
	}
}

// SaveAvatar stores the image attached to ev as the persona's avatar asset
// and returns the asset path. The event's own parts are scanned first, then
// one level of a quoted reply. Images are accepted as-is; file attachments
// must carry a known image extension.
func (s *Syncer) SaveAvatar(ctx context.Context, ev *platform.Event, personaID string) (string, error) {
	part, ok := findAvatarPart(ev.Parts)
	if !ok {
		return "", ErrNoImage
	}

	if part.Kind == platform.PartFile {
		ext := strings.ToLower(filepath.Ext(part.Name))
		if !supportedAvatarExts[ext] {
			return "", fmt.Errorf("%w (got %q)", ErrUnsupportedAvatar, ext)
		}
	}

	data, err := platform.FetchPartBytes(ctx, s.client, ev.Adapter, part)
	if err != nil {
		return "", fmt.Errorf("failed to fetch avatar image: %w", err)
	}

	if err := os.MkdirAll(s.avatarDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create avatar directory: %w", err)
	}

	path := s.AvatarPath(personaID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write avatar asset: %w", err)
	}

	s.logger.InfoContext(ctx, "Avatar asset saved", "persona_id", personaID, "path", path, "bytes", len(data))
	return path, nil
}

// DeleteAvatar removes the persona's avatar asset, if any, and forgets
// every cached sync of that persona so a later recreation pushes again.
func (s *Syncer) DeleteAvatar(ctx context.Context, personaID string) error {
	if err := os.Remove(s.AvatarPath(personaID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove avatar asset: %w", err)
	}

	s.mu.Lock()
	for key, id := range s.synced {
		if id == personaID {
			delete(s.synced, key)
		}
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Avatar asset and sync cache purged", "persona_id", personaID)
	return nil
}

// AvatarPath returns where the persona's avatar asset lives, whether or
// not it exists.
func (s *Syncer) AvatarPath(personaID string) string {
	return filepath.Join(s.avatarDir, personaID+avatarExt)
}

// HasAvatar reports whether an avatar asset exists for the persona.
func (s *Syncer) HasAvatar(personaID string) bool {
	_, err := os.Stat(s.AvatarPath(personaID))
	return err == nil
}

// Assets lists the persona ids that currently have avatar assets on disk.
func (s *Syncer) Assets() ([]string, error) {
	entries, err := os.ReadDir(s.avatarDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read avatar directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, avatarExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, avatarExt))
	}
	return ids, nil
}

// lastSynced returns the persona last pushed for a bot identity.
func (s *Syncer) lastSynced(botKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced[botKey]
}

// findAvatarPart returns the first image or file part on the event, or one
// level inside a quoted reply, in that scan order.
func findAvatarPart(parts []platform.Part) (platform.Part, bool) {
	for _, part := range parts {
		switch part.Kind {
		case platform.PartImage, platform.PartFile:
			return part, true
		}
	}

	for _, part := range parts {
		if part.Kind != platform.PartReply {
			continue
		}
		for _, nested := range part.Reply {
			switch nested.Kind {
			case platform.PartImage, platform.PartFile:
				return nested, true
			}
		}
	}

	return platform.Part{}, false
}
