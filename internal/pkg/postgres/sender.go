package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// Sender performs messages sending using postgres gue
type Sender struct {
	gc *gue.Client
}

// NewSender initializes gue sender
func NewSender(pool *pgxpool.Pool) (*Sender, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &Sender{gc: gc}, nil
}

// SendMessage enqueues the message, a job with RunAt set is delayed until that time
func (sender *Sender) SendMessage(ctx context.Context, msg amessages.Message, opt *messages.Options) error {
	goapp.Log.Debug().Str("queue", opt.Queue).Str("type", opt.Type).Msg("Sending message")
	j, err := newJob(msg, opt)
	if err != nil {
		return err
	}
	if err := sender.gc.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("can't send msg to %s: %w", opt.Queue, err)
	}
	goapp.Log.Debug().Time("runAt", opt.RunAt).Msg("Sent")
	return nil
}

func newJob(msg amessages.Message, opt *messages.Options) (*gue.Job, error) {
	args, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("can't marshal msg: %w", err)
	}
	return &gue.Job{
		Type:  opt.Type,
		Queue: opt.Queue,
		Args:  args,
		RunAt: opt.RunAt,
	}, nil
}
