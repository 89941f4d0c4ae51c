// Package platform defines the transport-agnostic event model shared by the
// chat platform adapters and the core dispatch pipeline.
package platform

import (
	"context"
	"errors"
)

// ErrNoAdapter indicates an event that was constructed without a backing
// adapter, so no reply or file resolution is possible.
var ErrNoAdapter = errors.New("event has no adapter")

// PartKind discriminates the closed set of message part variants.
type PartKind int

const (
	// PartText is a plain text segment.
	PartText PartKind = iota
	// PartImage is an image attachment, referenced by URL or platform file id.
	PartImage
	// PartFile is a generic file attachment with a filename.
	PartFile
	// PartReply holds the parts of a quoted message, one level deep.
	PartReply
)

// Part is one element of an inbound message. Only the fields matching its
// Kind are set: Text for PartText, Name and a URL or FileID for PartImage
// and PartFile, Reply for PartReply.
type Part struct {
	Kind   PartKind
	Text   string
	Name   string
	URL    string
	FileID string
	Reply  []Part
}

// Event is one inbound message normalized across platform adapters.
type Event struct {
	Platform   string
	SelfID     string
	ChatID     string
	MessageID  string
	SenderID   string
	SenderName string
	IsAdmin    bool // sender is flagged admin by the transport configuration
	IsDirect   bool // private or direct-message chat
	Mentioned  bool // the bot was explicitly addressed
	Text       string
	Parts      []Part
	Adapter    Adapter
}

// OriginKey identifies where the conversation is happening. It keys
// conversation state and origin-scoped settings.
func (e *Event) OriginKey() string {
	return e.Platform + ":" + e.ChatID
}

// BotKey identifies the bot account on its platform. It keys profile sync
// de-duplication.
func (e *Event) BotKey() string {
	return e.Platform + ":" + e.SelfID
}

// Reply sends text back to the chat the event came from.
func (e *Event) Reply(ctx context.Context, text string) error {
	if e.Adapter == nil {
		return ErrNoAdapter
	}
	return e.Adapter.Reply(ctx, e, text)
}

// Adapter is the surface a chat platform integration exposes to the core.
type Adapter interface {
	// Name returns the platform identifier, e.g. "telegram".
	Name() string
	// SelfID returns the bot's own account id on the platform.
	SelfID() string
	// Reply sends text to the chat ev originated from.
	Reply(ctx context.Context, ev *Event, text string) error
	// ResolveFileURL turns an image or file part into a fetchable URL.
	ResolveFileURL(ctx context.Context, part Part) (string, error)
}

// NicknameSetter is an optional adapter capability for changing the bot's
// platform-visible display name.
type NicknameSetter interface {
	SetBotNickname(ctx context.Context, name string) error
}

// AvatarSetter is an optional adapter capability for changing the bot's
// avatar image.
type AvatarSetter interface {
	SetBotAvatar(ctx context.Context, image []byte) error
}

// TypingNotifier is an optional adapter capability for showing a typing
// indicator while a reply is being generated.
type TypingNotifier interface {
	NotifyTyping(ctx context.Context, ev *Event)
}

// HandlerFunc processes one inbound event.
type HandlerFunc func(ctx context.Context, ev *Event)

// Middleware wraps a HandlerFunc with cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc
