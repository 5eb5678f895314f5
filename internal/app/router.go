package app

import (
	"context"
	"strings"
	"sync"

	"broadcastbot/internal/broadcast"
	"broadcastbot/internal/transport"
	"broadcastbot/pkg/logx"
	"broadcastbot/pkg/tgui"
)

const callbackComp = "bcast"

// Router consumes transport updates: commands, inline keyboard callbacks and
// free-text/media messages feeding the active authoring session.
type Router struct {
	log      logx.Logger
	adapter  transport.Adapter
	store    broadcast.Store
	sessions *broadcast.Sessions

	mu     sync.Mutex
	owners []int64
}

func NewRouter(log logx.Logger, adapter transport.Adapter, store broadcast.Store,
	sessions *broadcast.Sessions, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{log: log, adapter: adapter, store: store, sessions: sessions, owners: owners}
}

// SetOwners swaps the owner allow-list (config hot reload).
func (r *Router) SetOwners(owners []int64) {
	r.mu.Lock()
	r.owners = append([]int64(nil), owners...)
	r.mu.Unlock()
}

func (r *Router) allowed(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.owners) == 0 {
		return true
	}
	for _, id := range r.owners {
		if id == userID {
			return true
		}
	}
	return false
}

// DispatchLoop runs until ctx is cancelled or the channel closes.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			switch up.Kind {
			case transport.UpdateMessage:
				if up.Message != nil {
					r.handleMessage(ctx, up.Message)
				}
			case transport.UpdateCallback:
				if up.Callback != nil {
					r.handleCallback(ctx, up.Callback)
				}
			}
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	if !r.allowed(m.FromID) {
		return
	}
	to := transport.ChatTarget{ChatID: m.ChatID}

	// Media first: a photo/video message feeds the pending-attachment step.
	var att broadcast.Attachment
	switch {
	case m.PhotoFileID != "":
		att = broadcast.PhotoAttachment(m.PhotoFileID)
	case m.VideoFileID != "":
		att = broadcast.VideoAttachment(m.VideoFileID)
	}
	if !att.IsZero() {
		if reply, handled := r.sessions.HandleMedia(ctx, m.FromID, att); handled {
			r.reply(ctx, to, reply)
		}
		return
	}

	text := strings.TrimSpace(m.Text)
	if strings.HasPrefix(text, "/") {
		r.handleCommand(ctx, to, m.FromID, text)
		return
	}

	if reply, handled := r.sessions.HandleText(ctx, m.FromID, text); handled {
		r.reply(ctx, to, reply)
	}
}

func (r *Router) handleCommand(ctx context.Context, to transport.ChatTarget, userID int64, text string) {
	cmd := text
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start", "/menu":
		r.sendMenu(ctx, to)
	case "/list":
		r.reply(ctx, to, broadcast.RenderList(r.store.Tasks()))
	case "/help":
		r.reply(ctx, to, helpText)
	default:
		r.reply(ctx, to, "Unknown command. Try /start.")
	}
	_ = userID
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	if !r.allowed(cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Not allowed")
		return
	}
	comp, action, ok := tgui.ParseData(cb.Data)
	if !ok || comp != callbackComp {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	to := transport.ChatTarget{ChatID: cb.ChatID}

	switch action {
	case "new_interval":
		r.reply(ctx, to, r.sessions.Begin(cb.FromID, broadcast.KindInterval))
	case "new_daily":
		r.reply(ctx, to, r.sessions.Begin(cb.FromID, broadcast.KindDaily))
	case "new_weekly":
		r.reply(ctx, to, r.sessions.Begin(cb.FromID, broadcast.KindWeekly))
	case "new_monthly":
		r.reply(ctx, to, r.sessions.Begin(cb.FromID, broadcast.KindMonthly))
	case "list":
		r.reply(ctx, to, broadcast.RenderList(r.store.Tasks()))
	}
}

func (r *Router) sendMenu(ctx context.Context, to transport.ChatTarget) {
	kb := tgui.NewInline().
		Row(
			tgui.Btn("Every N minutes", tgui.Data(callbackComp, "new_interval")),
			tgui.Btn("Daily", tgui.Data(callbackComp, "new_daily")),
		).
		Row(
			tgui.Btn("Weekly", tgui.Data(callbackComp, "new_weekly")),
			tgui.Btn("Monthly", tgui.Data(callbackComp, "new_monthly")),
		).
		Row(
			tgui.Btn("Show scheduled", tgui.Data(callbackComp, "list")),
		)
	err := r.adapter.SendText(ctx, to, "What should I schedule?", &transport.SendOptions{ReplyMarkup: kb.Markup()})
	if err != nil {
		r.log.Warn("menu send failed", logx.Err(err))
	}
}

func (r *Router) reply(ctx context.Context, to transport.ChatTarget, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := r.adapter.SendText(ctx, to, text, nil); err != nil {
		r.log.Warn("reply send failed", logx.Err(err))
	}
}

const helpText = `I broadcast recurring messages into the configured channel.

/start - pick a schedule type and create a task
/list - show scheduled broadcasts

Task input format: "text | parameters", for example:
  Water the plants | 90        (every 90 minutes)
  Morning digest | 09:00       (daily)
  Weekly recap | friday 18:30  (weekly)
  Pay the rent | 1 10:00       (monthly)

After creating a task you may send one photo or video to attach it.`
