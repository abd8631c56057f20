package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/index"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/monitor"
	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/status"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/airenas/vidsearch/internal/pkg/utils/handler"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
	"github.com/vgarvardt/gue/v5"
	"go.uber.org/multierr"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, *messages.Options) error
}

// DB provides persistence functionality
type DB interface {
	LoadWorkflow(ctx context.Context, id string) (*persistence.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *persistence.Workflow, msgs ...*messages.Envelope) error
}

// Ingester starts workflows from upload notifications
type Ingester interface {
	Handle(ctx context.Context, m *messages.NotificationMessage) error
}

// GatewayProvider returns the transcription gateway by key
type GatewayProvider interface {
	Get(srv string, allowNew bool) (api.Gateway, string, error)
}

// Monitor drives workflow phases
type Monitor interface {
	Step(ctx context.Context, states monitor.StateGetter, wf *persistence.Workflow) (time.Time, error)
	Complete(ctx context.Context, index monitor.IndexFunc, wf *persistence.Workflow) error
	Fail(wf *persistence.Workflow, err error)
}

// Indexer writes the transcript to the search index
type Indexer interface {
	Index(ctx context.Context, artifacts index.ArtifactProvider, src index.Source) (int, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Ingester    Ingester
	Gateways    GatewayProvider
	Monitor     Monitor
	Indexer     Indexer
	Testing     bool
}

const (
	wrkQueuePrefix = messages.Work + ":"
	wrkMonitor     = "wrk-monitor"
	wrkFail        = "wrk-fail"
)

// StartWorkerService starts the event queue listener service to listen for events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (<-chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}
	failF := func(ctx context.Context, m *messages.WorkflowMessage, err error) error {
		return sendFailure(ctx, m.ID, err, data)
	}
	wm := gue.WorkMap{
		wrkMonitor: handler.Create(data, handleMonitor, handler.DefaultOpts[messages.WorkflowMessage]().WithFailure(failF).
			WithTimeout(time.Minute*30).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		wrkFail: handler.Create(data, handleFailure, handler.DefaultOpts[messages.WorkflowMessage]().
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}
	im := gue.WorkMap{
		messages.Ingest: handler.Create(data, handleIngest, handler.DefaultOpts[messages.NotificationMessage]().
			WithTimeout(time.Minute*5).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}
	wrkPool, err := newPool(data, wm, messages.Work, "vidsearch-worker")
	if err != nil {
		return nil, err
	}
	ingestPool, err := newPool(data, im, messages.Ingest, "vidsearch-ingest")
	if err != nil {
		return nil, err
	}
	res := make(chan struct{}, 1)
	go func() {
		defer close(res)
		runPools(ctx, wrkPool, ingestPool)
	}()
	return res, nil
}

func newPool(data *ServiceData, wm gue.WorkMap, queue, id string) (*gue.WorkerPool, error) {
	res, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(queue),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID(id),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	return res, nil
}

func runPools(ctx context.Context, pools ...*gue.WorkerPool) {
	done := make(chan struct{}, len(pools))
	for _, p := range pools {
		go func(p *gue.WorkerPool) {
			if err := p.Run(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("pool error")
			}
			done <- struct{}{}
		}(p)
	}
	goapp.Log.Info().Int("pools", len(pools)).Msg("Started workers")
	for range pools {
		<-done
	}
	goapp.Log.Info().Msg("Pool workers finished")
}

func handleIngest(ctx context.Context, m *messages.NotificationMessage, data *ServiceData) error {
	goapp.Log.Info().Str("url", utils.HideQuery(m.URL)).Msg("handling ingest")
	return data.Ingester.Handle(ctx, m)
}

func handleMonitor(ctx context.Context, m *messages.WorkflowMessage, data *ServiceData) error {
	wf, err := loadActive(ctx, m, data)
	if err != nil || wf == nil {
		return err
	}
	switch status.PhaseFrom(wf.Phase) {
	case status.Polling:
		return poll(ctx, wf, data)
	case status.Completing:
		return complete(ctx, wf, data)
	}
	return utils.NewErrPermanent(fmt.Errorf("unexpected phase '%s'", wf.Phase))
}

func loadActive(ctx context.Context, m *messages.WorkflowMessage, data *ServiceData) (*persistence.Workflow, error) {
	wf, err := data.DB.LoadWorkflow(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("can't load workflow: %w", err)
	}
	if wf == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no workflow, drop")
		return nil, nil
	}
	if status.PhaseFrom(wf.Phase).IsFinal() {
		goapp.Log.Info().Str("ID", m.ID).Str("phase", wf.Phase).Msg("workflow finished, drop")
		return nil, nil
	}
	if m.Seq != wf.Polls {
		goapp.Log.Warn().Str("ID", m.ID).Int("seq", m.Seq).Int("polls", wf.Polls).Msg("stale msg, drop")
		return nil, nil
	}
	return wf, nil
}

func poll(ctx context.Context, wf *persistence.Workflow, data *ServiceData) error {
	gw, err := gateway(wf, data)
	if err != nil {
		return err
	}
	next, failErr := data.Monitor.Step(ctx, gw, wf)
	log := goapp.Log.Info()
	if failErr != nil {
		log = goapp.Log.Error().Err(failErr)
	}
	log.Str("ID", wf.ID).Str("videoID", wf.Input.VideoID).Str("phase", wf.Phase).
		Str("state", utils.FromSQLStr(wf.ProcessingState)).Int("polls", wf.Polls).Msg("polled")
	var msgs []*messages.Envelope
	switch status.PhaseFrom(wf.Phase) {
	case status.Polling:
		msgs = append(msgs, messages.NewEnvelope(messages.NewWorkflowMessage(wf.ID, wf.Polls),
			messages.DefaultOpts(wrkQueuePrefix+wrkMonitor).WithRunAt(next)))
	case status.Completing:
		msgs = append(msgs, messages.NewEnvelope(messages.NewWorkflowMessage(wf.ID, wf.Polls),
			messages.DefaultOpts(wrkQueuePrefix+wrkMonitor)))
	case status.Expired:
		goapp.Log.Warn().Str("ID", wf.ID).Str("videoID", wf.Input.VideoID).Str("phase", wf.Phase).Msg("gave up monitoring")
		msgs = append(msgs, informMsg(wf.ID, messages.InformTypeExpired))
	case status.PhaseFailed:
		msgs = append(msgs, informMsg(wf.ID, amessages.InformTypeFailed))
	}
	msgs = append(msgs, statusChangeMsg(wf.ID))
	return save(ctx, wf, msgs, data)
}

func complete(ctx context.Context, wf *persistence.Workflow, data *ServiceData) error {
	gw, err := gateway(wf, data)
	if err != nil {
		return err
	}
	err = data.Monitor.Complete(ctx, func(ctx context.Context, wf *persistence.Workflow) (int, error) {
		return data.Indexer.Index(ctx, gw, index.Source{Account: wf.Input.StorageAccountName,
			Container: wf.Input.ContainerName, Blob: wf.Input.BlobName, VideoID: wf.Input.VideoID})
	}, wf)
	if err != nil {
		return fmt.Errorf("can't index: %w", err)
	}
	goapp.Log.Info().Str("ID", wf.ID).Str("videoID", wf.Input.VideoID).Int("docs", wf.Documents).Msg("completed")
	return save(ctx, wf, []*messages.Envelope{informMsg(wf.ID, amessages.InformTypeFinished), statusChangeMsg(wf.ID)}, data)
}

func handleFailure(ctx context.Context, m *messages.WorkflowMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("error", m.Error).Msg("handling failure")
	wf, err := data.DB.LoadWorkflow(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load workflow: %w", err)
	}
	if wf == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no workflow, drop")
		return nil
	}
	if status.PhaseFrom(wf.Phase).IsFinal() {
		goapp.Log.Info().Str("ID", m.ID).Str("phase", wf.Phase).Msg("workflow finished, ignore failure")
		return nil
	}
	data.Monitor.Fail(wf, errors.New(m.Error))
	return save(ctx, wf, []*messages.Envelope{informMsg(wf.ID, amessages.InformTypeFailed), statusChangeMsg(wf.ID)}, data)
}

func sendFailure(ctx context.Context, id string, err error, data *ServiceData) error {
	msg := messages.NewWorkflowMessage(id, 0)
	msg.Error = err.Error()
	return data.MsgSender.SendMessage(ctx, msg, messages.DefaultOpts(wrkQueuePrefix+wrkFail))
}

func save(ctx context.Context, wf *persistence.Workflow, msgs []*messages.Envelope, data *ServiceData) error {
	err := data.DB.UpdateWorkflow(ctx, wf, msgs...)
	if errors.Is(err, persistence.ErrStale) {
		goapp.Log.Warn().Err(err).Str("ID", wf.ID).Msg("workflow changed by other worker, drop")
		return nil
	}
	if err != nil {
		return fmt.Errorf("can't save workflow: %w", err)
	}
	return nil
}

func gateway(wf *persistence.Workflow, data *ServiceData) (api.Gateway, error) {
	gw, _, err := data.Gateways.Get(wf.Input.Transcriber, false)
	if err != nil {
		return nil, fmt.Errorf("can't get gateway '%s': %w", wf.Input.Transcriber, err)
	}
	return gw, nil
}

func informMsg(id, informType string) *messages.Envelope {
	return messages.NewEnvelope(&amessages.InformMessage{QueueMessage: amessages.QueueMessage{ID: id},
		Type: informType, At: time.Now()}, messages.DefaultOpts(messages.Inform))
}

func statusChangeMsg(id string) *messages.Envelope {
	return messages.NewEnvelope(&amessages.QueueMessage{ID: id}, messages.DefaultOpts(messages.StatusChange))
}

func validate(data *ServiceData) error {
	var err error
	if data.GueClient == nil {
		err = multierr.Append(err, fmt.Errorf("no gue client"))
	}
	if data.WorkerCount < 1 {
		err = multierr.Append(err, fmt.Errorf("no worker count provided"))
	}
	if data.MsgSender == nil {
		err = multierr.Append(err, fmt.Errorf("no msg sender"))
	}
	if data.DB == nil {
		err = multierr.Append(err, fmt.Errorf("no DB"))
	}
	if data.Ingester == nil {
		err = multierr.Append(err, fmt.Errorf("no ingester"))
	}
	if data.Gateways == nil {
		err = multierr.Append(err, fmt.Errorf("no gateway provider"))
	}
	if data.Monitor == nil {
		err = multierr.Append(err, fmt.Errorf("no monitor"))
	}
	if data.Indexer == nil {
		err = multierr.Append(err, fmt.Errorf("no indexer"))
	}
	return err
}
