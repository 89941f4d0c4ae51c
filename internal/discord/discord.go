// Package discord adapts the Discord gateway to the platform event model
// using the discordgo library.
package discord

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/platform"
)

const (
	sendTimeout = 10 * time.Second
	// Discord rejects messages over 2000 characters; keep headroom for
	// boundary-preserving splits.
	messageSizeLimit = 1900
)

// Adapter connects the bot to Discord. It converts gateway messages into
// platform events and implements the reply, file resolution, nickname,
// avatar, and typing capabilities.
type Adapter struct {
	logger   *slog.Logger
	session  *discordgo.Session
	dispatch platform.HandlerFunc
	adminIDs map[string]struct{}

	// self and runCtx are set in Run before the gateway opens, so handler
	// goroutines only ever read them.
	self   *discordgo.User
	runCtx context.Context
}

// NewAdapter creates the Discord adapter. Every converted inbound event is
// passed to dispatch.
func NewAdapter(cfg config.DiscordConfig, logger *slog.Logger, dispatch platform.HandlerFunc) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent

	a := &Adapter{
		logger:   logger.With("component", "discord_adapter"),
		session:  session,
		dispatch: dispatch,
		adminIDs: make(map[string]struct{}, len(cfg.AdminUserIDs)),
	}
	for _, id := range cfg.AdminUserIDs {
		a.adminIDs[id] = struct{}{}
	}

	return a, nil
}

// Name returns the platform identifier.
func (a *Adapter) Name() string { return "discord" }

// SelfID returns the bot's own user id. It is empty until Run has
// retrieved the bot identity.
func (a *Adapter) SelfID() string {
	if a.self == nil {
		return ""
	}
	return a.self.ID
}

// Run retrieves the bot identity, opens the gateway session, and blocks
// until the context is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	self, err := a.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	a.self = self
	a.runCtx = ctx

	a.session.AddHandler(a.handleMessage)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	a.logger.Info("Discord bot connected", "bot_id", self.ID, "bot_username", self.Username)

	<-ctx.Done()

	a.logger.Info("Closing Discord session...")
	if err := a.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (a *Adapter) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}
	if m.Author.ID == a.self.ID || m.Author.Bot {
		return
	}

	ctx := a.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	a.dispatch(ctx, a.eventFromMessage(m))
}

func (a *Adapter) eventFromMessage(m *discordgo.MessageCreate) *platform.Event {
	ev := &platform.Event{
		Platform:   a.Name(),
		SelfID:     a.self.ID,
		ChatID:     m.ChannelID,
		MessageID:  m.ID,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		IsDirect:   m.GuildID == "",
		Mentioned:  a.mentioned(m),
		Text:       m.Content,
		Parts:      partsFromMessage(m.Message, true),
		Adapter:    a,
	}
	_, ev.IsAdmin = a.adminIDs[m.Author.ID]

	return ev
}

// mentioned reports whether the message addresses the bot: an explicit
// mention or a reply to one of the bot's messages.
func (a *Adapter) mentioned(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == a.self.ID {
			return true
		}
	}
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil && m.ReferencedMessage.Author.ID == a.self.ID {
		return true
	}
	return false
}

// partsFromMessage converts message content into platform parts. When the
// message quotes another, that message's parts are nested one level deep.
func partsFromMessage(m *discordgo.Message, includeReply bool) []platform.Part {
	var parts []platform.Part

	if m.Content != "" {
		parts = append(parts, platform.Part{Kind: platform.PartText, Text: m.Content})
	}

	for _, att := range m.Attachments {
		kind := platform.PartFile
		if strings.HasPrefix(att.ContentType, "image/") {
			kind = platform.PartImage
		}
		parts = append(parts, platform.Part{Kind: kind, Name: att.Filename, URL: att.URL})
	}

	if includeReply && m.ReferencedMessage != nil {
		if replyParts := partsFromMessage(m.ReferencedMessage, false); len(replyParts) > 0 {
			parts = append(parts, platform.Part{Kind: platform.PartReply, Reply: replyParts})
		}
	}

	return parts
}

// Reply sends text to the event's channel, split into chunks below the
// message size limit. Only the first chunk references the triggering
// message.
func (a *Adapter) Reply(ctx context.Context, ev *platform.Event, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	for i, chunk := range splitMessage(text, messageSizeLimit) {
		var err error
		if i == 0 && ev.MessageID != "" {
			ref := &discordgo.MessageReference{MessageID: ev.MessageID, ChannelID: ev.ChatID}
			_, err = a.session.ChannelMessageSendReply(ev.ChatID, chunk, ref, discordgo.WithContext(sendCtx))
		} else {
			_, err = a.session.ChannelMessageSend(ev.ChatID, chunk, discordgo.WithContext(sendCtx))
		}
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
	}
	return nil
}

// splitMessage splits content into chunks at most limit bytes long,
// preferring newline then space boundaries and never cutting a rune.
func splitMessage(content string, limit int) []string {
	var chunks []string

	for len(content) > limit {
		cut := strings.LastIndexByte(content[:limit], '\n')
		if cut <= 0 {
			cut = strings.LastIndexByte(content[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
		}

		chunk := strings.TrimSpace(content[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		content = strings.TrimSpace(content[cut:])
	}

	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// ResolveFileURL returns the attachment's CDN URL, which Discord delivers
// directly on the message.
func (a *Adapter) ResolveFileURL(_ context.Context, part platform.Part) (string, error) {
	if part.URL == "" {
		return "", fmt.Errorf("part has no attachment url")
	}
	return part.URL, nil
}

// SetBotNickname updates the bot account's global username. Discord rate
// limits username changes, so callers should treat failures as transient.
func (a *Adapter) SetBotNickname(ctx context.Context, name string) error {
	if _, err := a.session.UserUpdate(name, "", discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to set discord username: %w", err)
	}
	return nil
}

// SetBotAvatar replaces the bot account's avatar image.
func (a *Adapter) SetBotAvatar(ctx context.Context, image []byte) error {
	avatar := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	if _, err := a.session.UserUpdate("", avatar, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to set discord avatar: %w", err)
	}
	return nil
}

// NotifyTyping shows the typing indicator in the event's channel. Failures
// only cost the indicator.
func (a *Adapter) NotifyTyping(ctx context.Context, ev *platform.Event) {
	if err := a.session.ChannelTyping(ev.ChatID, discordgo.WithContext(ctx)); err != nil {
		a.logger.DebugContext(ctx, "Failed to send typing indicator", "channel_id", ev.ChatID, "error", err)
	}
}
