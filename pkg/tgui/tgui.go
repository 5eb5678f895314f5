package tgui

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Data formats inline callback data as "comp:action".
func Data(comp, action string) string {
	return strings.TrimSpace(comp) + ":" + strings.TrimSpace(action)
}

// ParseData splits "comp:action" callback data. Telegram clients may prefix
// callback data with "\f"; it is stripped here.
func ParseData(raw string) (comp, action string, ok bool) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "\f")
	comp, action, ok = strings.Cut(raw, ":")
	return comp, action, ok
}
