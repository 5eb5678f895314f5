package transport

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

	// Opaque media references (Telegram file ids). At most one is set.
	PhotoFileID string
	VideoFileID string
	Caption     string
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

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyMarkup    any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Adapter is the chat transport: it delivers incoming updates to a channel
// and sends outbound payloads. Implementations report delivery failure via
// the returned error and nothing else; retrying is the caller's business.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, to ChatTarget, fileID, caption string) error
	SendVideo(ctx context.Context, to ChatTarget, fileID, caption string) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
