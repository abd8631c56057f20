package ingest

import (
	"context"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
)

// DefaultReadURLExpiry is the lifetime of the media read URL
const DefaultReadURLExpiry = 10 * time.Minute

// ReadURLIssuer makes a time limited read URL of the blob
type ReadURLIssuer interface {
	ReadURL(ctx context.Context, container, blob string, expiry time.Duration) (string, error)
}

// GatewayProvider returns transcription gateway
type GatewayProvider interface {
	Get(srv string, allowNew bool) (api.Gateway, string, error)
}

// DB keeps workflows
type DB interface {
	LoadWorkflow(ctx context.Context, id string) (*persistence.Workflow, error)
	// InsertWorkflow saves the workflow and enqueues msgs in one transaction,
	// returns false if the workflow already exists
	InsertWorkflow(ctx context.Context, wf *persistence.Workflow, msgs ...*messages.Envelope) (bool, error)
}

// Starter initializes workflow monitoring
type Starter interface {
	Start(wf *persistence.Workflow)
}

// Config for the coordinator
type Config struct {
	ReadURLExpiry time.Duration
}

// Coordinator starts a workflow for an uploaded blob
type Coordinator struct {
	issuer   ReadURLIssuer
	gateways GatewayProvider
	starter  Starter
	expiry   time.Duration
}

// NewCoordinator creates coordinator
func NewCoordinator(issuer ReadURLIssuer, gateways GatewayProvider, starter Starter, cfg Config) (*Coordinator, error) {
	if issuer == nil {
		return nil, fmt.Errorf("no read url issuer")
	}
	if gateways == nil {
		return nil, fmt.Errorf("no gateway provider")
	}
	if starter == nil {
		return nil, fmt.Errorf("no starter")
	}
	res := &Coordinator{issuer: issuer, gateways: gateways, starter: starter, expiry: cfg.ReadURLExpiry}
	if res.expiry <= 0 {
		res.expiry = DefaultReadURLExpiry
	}
	goapp.Log.Info().Dur("readURLExpiry", res.expiry).Msg("ingest")
	return res, nil
}

// Prepare submits the blob for transcription and returns a started workflow
func (c *Coordinator) Prepare(ctx context.Context, ref *BlobRef, id string) (*persistence.Workflow, error) {
	readURL, err := c.issuer.ReadURL(ctx, ref.Container, ref.Blob, c.expiry)
	if err != nil {
		return nil, fmt.Errorf("can't get read url: %w", err)
	}
	gw, key, err := c.gateways.Get("", true)
	if err != nil {
		return nil, fmt.Errorf("can't get gateway: %w", err)
	}
	if gw == nil {
		return nil, fmt.Errorf("no active gateway")
	}
	videoID, err := gw.Submit(ctx, readURL, ref.Name())
	if err != nil {
		return nil, fmt.Errorf("can't submit: %w", err)
	}
	goapp.Log.Info().Str("ID", id).Str("videoID", videoID).Str("gateway", key).Msg("submitted")
	res := &persistence.Workflow{ID: id, Input: persistence.WorkflowInput{
		StorageAccountName: ref.Account, ContainerName: ref.Container, BlobName: ref.Blob,
		VideoID: videoID, Transcriber: key}}
	c.starter.Start(res)
	return res, nil
}

// Ingester handles notifications durably
type Ingester struct {
	coordinator *Coordinator
	db          DB
}

// NewIngester creates ingester
func NewIngester(coordinator *Coordinator, db DB) (*Ingester, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("no coordinator")
	}
	if db == nil {
		return nil, fmt.Errorf("no DB")
	}
	return &Ingester{coordinator: coordinator, db: db}, nil
}

// Handle starts one workflow per blob version, repeated notifications are ignored
func (i *Ingester) Handle(ctx context.Context, m *messages.NotificationMessage) error {
	ref, err := ParseBlobURL(m.URL)
	if err != nil {
		goapp.Log.Error().Err(err).Str("url", utils.HideQuery(m.URL)).Msg("drop notification")
		return utils.NewErrPermanent(err)
	}
	id := WorkflowID(ref, m.ETag)
	goapp.Log.Info().Str("ID", id).Str("container", ref.Container).Str("blob", ref.Blob).Msg("handling notification")
	wf, err := i.db.LoadWorkflow(ctx, id)
	if err != nil {
		return fmt.Errorf("can't load workflow: %w", err)
	}
	if wf != nil {
		goapp.Log.Info().Str("ID", id).Str("phase", wf.Phase).Msg("workflow exists, skip")
		return nil
	}
	wf, err = i.coordinator.Prepare(ctx, ref, id)
	if err != nil {
		return err
	}
	inserted, err := i.db.InsertWorkflow(ctx, wf,
		messages.NewEnvelope(messages.NewWorkflowMessage(id, 0), messages.DefaultOpts(messages.WorkMonitor)),
		messages.NewEnvelope(&amessages.QueueMessage{ID: id}, messages.DefaultOpts(messages.StatusChange)))
	if err != nil {
		return fmt.Errorf("can't save workflow: %w", err)
	}
	if !inserted {
		goapp.Log.Warn().Str("ID", id).Str("videoID", wf.Input.VideoID).Msg("workflow inserted by other worker, skip")
		return nil
	}
	goapp.Log.Info().Str("ID", id).Msg("workflow started")
	return nil
}
