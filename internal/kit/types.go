// Package kit holds the transport-neutral types shared between the chat
// adapter and everything that talks through it. Nothing in here knows
// about Telegram; the adapter translates both ways.
package kit

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkupAdapter carries adapter-specific markup (Telegram:
	// *telebot.ReplyMarkup). Callers treat it as an opaque payload.
	ReplyMarkupAdapter any
}

// Profile is the platform-side identity of a person, used only for
// presentation (the numeric id is the key everywhere else).
type Profile struct {
	ID          int64
	DisplayName string
	Emails      []string
}

// BotCommand is a single entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	Profile(ctx context.Context, userID int64) (Profile, error)
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
