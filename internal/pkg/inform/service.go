package inform

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/async-api/pkg/inform"
	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/airenas/vidsearch/internal/pkg/utils/handler"
	"github.com/jordan-wright/email"
	"github.com/vgarvardt/gue/v5"
	"go.uber.org/multierr"
)

// Sender send emails
type Sender interface {
	Send(email *email.Email) error
}

// EmailMaker prepares the email
type EmailMaker interface {
	Make(data *inform.Data) (*email.Email, error)
}

// DB tracks email sending process
// It is used to quarantee not to send the emails twice
type DB interface {
	LockEmailTable(context.Context, string, string) error
	UnLockEmailTable(context.Context, string, string, *int) error
	LoadWorkflow(ctx context.Context, id string) (*persistence.Workflow, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	EmailSender Sender
	EmailMaker  EmailMaker
	DB          DB
	Location    *time.Location
	// Email of the operator
	Email   string
	Testing bool
}

// StartWorkerService starts the event queue listener service to listen for inform events
// returns channel for tracking when all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (<-chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("email", data.Email).Msg("Starting listen for messages")

	wm := gue.WorkMap{
		messages.Inform: handler.Create(data, handleInform, handler.DefaultOpts[amessages.InformMessage]().
			WithTimeout(time.Minute).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Inform),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("vidsearch-inform"),
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

func handleInform(ctx context.Context, m *amessages.InformMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("type", m.Type).Msg("handling")

	wf, err := data.DB.LoadWorkflow(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load workflow: %w", err)
	}
	if wf == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no workflow, skip")
		return nil
	}
	goapp.Log.Info().Str("ID", m.ID).Str("blob", wf.Input.BlobName).Str("videoID", wf.Input.VideoID).
		Str("phase", wf.Phase).Msg("workflow")

	mailData := inform.Data{}
	mailData.ID = m.ID
	mailData.MsgTime = toLocalTime(data, m.At)
	mailData.MsgType = m.Type
	mailData.Email = data.Email

	email, err := data.EmailMaker.Make(&mailData)
	if err != nil {
		return fmt.Errorf("can't prepare email: %w", err)
	}

	err = data.DB.LockEmailTable(ctx, mailData.ID, mailData.MsgType)
	if err != nil {
		return fmt.Errorf("can't lock mail table: %w", err)
	}
	var unlockValue = 0
	defer func() {
		if err := data.DB.UnLockEmailTable(ctx, mailData.ID, mailData.MsgType, &unlockValue); err != nil {
			goapp.Log.Error().Err(err).Str("ID", mailData.ID).Msg("can't unlock mail table")
		}
	}()

	err = data.EmailSender.Send(email)
	if err != nil {
		return fmt.Errorf("can't send email: %w", err)
	}
	unlockValue = 2
	return nil
}

func validate(data *ServiceData) error {
	var err error
	if data.GueClient == nil {
		err = multierr.Append(err, fmt.Errorf("no gue client"))
	}
	if data.WorkerCount < 1 {
		err = multierr.Append(err, fmt.Errorf("no worker count provided"))
	}
	if data.EmailMaker == nil {
		err = multierr.Append(err, fmt.Errorf("no EmailMaker"))
	}
	if data.EmailSender == nil {
		err = multierr.Append(err, fmt.Errorf("no EmailSender"))
	}
	if data.DB == nil {
		err = multierr.Append(err, fmt.Errorf("no DB"))
	}
	if data.Email == "" {
		err = multierr.Append(err, fmt.Errorf("no operator email"))
	}
	return err
}

func toLocalTime(data *ServiceData, t time.Time) time.Time {
	if data.Location != nil {
		return t.In(data.Location)
	}
	return t
}
