package broadcast

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"broadcastbot/internal/transport"
	"broadcastbot/pkg/logx"
)

// Dispatcher sends a due task's payload to the fixed destination chat. The
// payload shape follows the attachment: photo with caption, video with
// caption, or plain text.
type Dispatcher struct {
	adapter transport.Adapter
	target  transport.ChatTarget
	limiter *rate.Limiter
	log     logx.Logger
}

func NewDispatcher(adapter transport.Adapter, chatID int64, ratePerSec int, log logx.Logger) *Dispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		adapter: adapter,
		target:  transport.ChatTarget{ChatID: chatID},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

// Send delivers the task once. On error the caller must NOT record a firing;
// the next due cycle is the retry mechanism.
func (d *Dispatcher) Send(ctx context.Context, t Task) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	var err error
	switch t.Attachment.Kind {
	case AttachmentPhoto:
		err = d.adapter.SendPhoto(ctx, d.target, t.Attachment.FileID, t.Text)
	case AttachmentVideo:
		err = d.adapter.SendVideo(ctx, d.target, t.Attachment.FileID, t.Text)
	default:
		err = d.adapter.SendText(ctx, d.target, t.Text, nil)
	}
	if err != nil {
		return fmt.Errorf("dispatch task %s: %w", t.ID, err)
	}
	return nil
}
