package statusservice

import (
	"context"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/airenas/vidsearch/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// HandlerData keeps data required for handler
type HandlerData struct {
	GueClient   *gue.Client
	WorkerCount int
	DB          DB
	WSHandler   WSConnHandler
}

// StartStatusHandler starts the event queue listener for status events
// returns channel for tracking if all jobs are finished
func StartStatusHandler(ctx context.Context, data *HandlerData) (<-chan struct{}, error) {
	if err := validateHandler(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("Starting listen for messages")

	// status push is best effort, no retries
	wm := gue.WorkMap{
		messages.StatusChange: handler.Create(data, handleStatus, handler.DefaultOpts[amessages.QueueMessage]().
			WithTimeout(10*time.Second).WithMaxRetries(0)),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.StatusChange),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("vidsearch-status"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		defer close(res)
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
	}()
	return res, nil
}

func handleStatus(ctx context.Context, m *amessages.QueueMessage, data *HandlerData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling status change event")

	conns, found := data.WSHandler.GetConnections(m.ID)
	if !found {
		goapp.Log.Debug().Str("ID", m.ID).Msg("no connections found")
		return nil
	}
	wf, err := data.DB.LoadWorkflow(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("cannot get workflow %s: %w", m.ID, err)
	}
	if wf == nil {
		return fmt.Errorf("no workflow %s", m.ID)
	}
	res := mapWorkflow(wf)
	for _, c := range conns {
		if err := sendMsg(c, res); err != nil {
			goapp.Log.Error().Err(err).Send()
		}
	}
	return nil
}

// PushCurrent returns a callback sending the stored workflow status to a new watcher
func PushCurrent(db DB, timeout time.Duration) func(WsConn, string) {
	return func(c WsConn, id string) {
		ctx, cf := context.WithTimeout(context.Background(), timeout)
		defer cf()
		wf, err := db.LoadWorkflow(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Str("ID", goapp.Sanitize(id)).Msg("can't load workflow")
			return
		}
		if wf == nil {
			return
		}
		if err := sendMsg(c, mapWorkflow(wf)); err != nil {
			goapp.Log.Error().Err(err).Send()
		}
	}
}

func sendMsg(c WsConn, res *result) error {
	goapp.Log.Debug().Str("ID", res.ID).Msg("Sending result to websockket")
	err := c.WriteJSON(res)
	if err != nil {
		return fmt.Errorf("cannot write to websockket: %w", err)
	}
	goapp.Log.Debug().Str("ID", res.ID).Str("phase", res.Phase).Msg("sent msg to websockket")
	return nil
}

func validateHandler(data *HandlerData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}
