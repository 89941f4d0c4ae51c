// Package telegram adapts the Telegram Bot API to the platform event model
// using the go-telegram/bot library with long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/platform"
)

const (
	sendMessageTimeout = 10 * time.Second
	fileResolveTimeout = 30 * time.Second
)

// Adapter connects the bot to Telegram. It converts inbound updates into
// platform events and implements the reply, file resolution, nickname, and
// typing capabilities.
type Adapter struct {
	logger   *slog.Logger
	bot      *bot.Bot
	commands []config.CommandConfig
	dispatch platform.HandlerFunc
	adminIDs map[int64]struct{}

	// self is set in Run before polling starts, so handler goroutines
	// only ever read it.
	self *models.User
}

// NewAdapter creates the Telegram adapter. Every converted inbound event is
// passed to dispatch.
func NewAdapter(cfg config.TelegramConfig, commands []config.CommandConfig, logger *slog.Logger, dispatch platform.HandlerFunc) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		logger:   logger.With("component", "telegram_adapter"),
		commands: commands,
		dispatch: dispatch,
		adminIDs: make(map[int64]struct{}, len(cfg.AdminUserIDs)),
	}
	for _, id := range cfg.AdminUserIDs {
		a.adminIDs[id] = struct{}{}
	}

	b, err := bot.New(cfg.Token, bot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		a.logger.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	a.bot = b

	a.logger.Info("Telegram bot instance created successfully", "token_prefix", tokenPrefix(cfg.Token))
	return a, nil
}

// Name returns the platform identifier.
func (a *Adapter) Name() string { return "telegram" }

// SelfID returns the bot's own user id. It is empty until Run has
// retrieved the bot identity.
func (a *Adapter) SelfID() string {
	if a.self == nil {
		return ""
	}
	return strconv.FormatInt(a.self.ID, 10)
}

// Run retrieves the bot identity, publishes the command list, and polls
// for updates until the context is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	self, err := a.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	a.self = self
	a.logger.Info("Retrieved bot info", "bot_id", self.ID, "bot_username", self.Username)

	a.registerCommands(ctx)

	a.bot.Start(ctx)
	return nil
}

// registerCommands publishes the configured command list so clients show
// command completion. Failures are not fatal.
func (a *Adapter) registerCommands(ctx context.Context) {
	if len(a.commands) == 0 {
		return
	}

	commands := make([]models.BotCommand, 0, len(a.commands))
	for _, c := range a.commands {
		commands = append(commands, models.BotCommand{Command: c.Command, Description: c.Description})
	}

	if _, err := a.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: commands}); err != nil {
		a.logger.WarnContext(ctx, "Failed to publish command list", "error", err)
		return
	}
	a.logger.Info("Published command list", "count", len(commands))
}

func (a *Adapter) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if a.self != nil && msg.From.ID == a.self.ID {
		return
	}

	a.dispatch(ctx, a.eventFromMessage(msg))
}

func (a *Adapter) eventFromMessage(msg *models.Message) *platform.Event {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	ev := &platform.Event{
		Platform:   a.Name(),
		SelfID:     a.SelfID(),
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:  strconv.Itoa(msg.ID),
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: senderName(msg.From),
		IsDirect:   msg.Chat.Type == models.ChatTypePrivate,
		Mentioned:  a.mentioned(msg),
		Text:       text,
		Parts:      partsFromMessage(msg, true),
		Adapter:    a,
	}
	_, ev.IsAdmin = a.adminIDs[msg.From.ID]

	return ev
}

// mentioned reports whether the message addresses the bot: an @username
// mention entity, a bare username word, or a reply to one of the bot's
// messages.
func (a *Adapter) mentioned(msg *models.Message) bool {
	if a.self == nil || a.self.Username == "" {
		return false
	}
	username := strings.ToLower(a.self.Username)

	text := strings.ToLower(msg.Text + " " + msg.Caption)
	mention := "@" + username

	for _, e := range append(msg.Entities, msg.CaptionEntities...) {
		if e.Type != models.MessageEntityTypeMention {
			continue
		}
		if e.Offset >= 0 && e.Length > 0 && e.Offset+e.Length <= len(text) && text[e.Offset:e.Offset+e.Length] == mention {
			return true
		}
	}

	for _, w := range strings.Fields(text) {
		if strings.TrimFunc(w, unicode.IsPunct) == username {
			return true
		}
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == a.self.ID {
		return true
	}

	return false
}

// partsFromMessage converts message content into platform parts. When the
// message quotes another, that message's parts are nested one level deep.
func partsFromMessage(msg *models.Message, includeReply bool) []platform.Part {
	var parts []platform.Part

	if msg.Text != "" {
		parts = append(parts, platform.Part{Kind: platform.PartText, Text: msg.Text})
	} else if msg.Caption != "" {
		parts = append(parts, platform.Part{Kind: platform.PartText, Text: msg.Caption})
	}

	if len(msg.Photo) > 0 {
		largest := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.FileSize > largest.FileSize {
				largest = p
			}
		}
		parts = append(parts, platform.Part{Kind: platform.PartImage, FileID: largest.FileID})
	}

	if msg.Document != nil {
		parts = append(parts, platform.Part{Kind: platform.PartFile, Name: msg.Document.FileName, FileID: msg.Document.FileID})
	}

	if includeReply && msg.ReplyToMessage != nil {
		if replyParts := partsFromMessage(msg.ReplyToMessage, false); len(replyParts) > 0 {
			parts = append(parts, platform.Part{Kind: platform.PartReply, Reply: replyParts})
		}
	}

	return parts
}

// Reply sends text to the event's chat as a reply to the triggering
// message.
func (a *Adapter) Reply(ctx context.Context, ev *platform.Event, text string) error {
	chatID, err := strconv.ParseInt(ev.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", ev.ChatID, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if messageID, err := strconv.Atoi(ev.MessageID); err == nil && messageID > 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: messageID}
	}

	if _, err := a.bot.SendMessage(sendCtx, params); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// ResolveFileURL exchanges a part's Telegram file id for a short-lived
// download URL.
func (a *Adapter) ResolveFileURL(ctx context.Context, part platform.Part) (string, error) {
	if part.FileID == "" {
		return "", fmt.Errorf("part has no telegram file id")
	}

	resolveCtx, cancel := context.WithTimeout(ctx, fileResolveTimeout)
	defer cancel()

	file, err := a.bot.GetFile(resolveCtx, &bot.GetFileParams{FileID: part.FileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path returned from Telegram")
	}

	return a.bot.FileDownloadLink(file), nil
}

// SetBotNickname updates the bot's displayed name through the Bot API.
// Telegram has no Bot API call for the avatar, so that capability is
// deliberately not implemented here.
func (a *Adapter) SetBotNickname(ctx context.Context, name string) error {
	if _, err := a.bot.SetMyName(ctx, &bot.SetMyNameParams{Name: name}); err != nil {
		return fmt.Errorf("failed to set telegram bot name: %w", err)
	}
	return nil
}

// NotifyTyping shows the typing indicator in the event's chat. Failures
// only cost the indicator.
func (a *Adapter) NotifyTyping(ctx context.Context, ev *platform.Event) {
	chatID, err := strconv.ParseInt(ev.ChatID, 10, 64)
	if err != nil {
		return
	}

	if _, err := a.bot.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		a.logger.DebugContext(ctx, "Failed to send typing action", "chat_id", ev.ChatID, "error", err)
	}
}

func senderName(u *models.User) string {
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

func tokenPrefix(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}
