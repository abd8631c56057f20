package mocks

import (
	"context"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/index"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/status"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
	"github.com/stretchr/testify/mock"
)

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) LoadWorkflow(ctx context.Context, id string) (*persistence.Workflow, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Workflow](args.Get(0)), args.Error(1)
}

func (m *DB) InsertWorkflow(ctx context.Context, wf *persistence.Workflow, msgs ...*messages.Envelope) (bool, error) {
	args := m.Called(ctx, wf, msgs)
	return args.Bool(0), args.Error(1)
}

func (m *DB) UpdateWorkflow(ctx context.Context, wf *persistence.Workflow, msgs ...*messages.Envelope) error {
	args := m.Called(ctx, wf, msgs)
	return args.Error(0)
}

func (m *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	args := m.Called(ctx, id, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	args := m.Called(ctx, id, msgType, *value)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg amessages.Message, opt *messages.Options) error {
	args := m.Called(ctx, msg, opt)
	return args.Error(0)
}

// Gateway is transcription gateway mock
type Gateway struct{ mock.Mock }

func (m *Gateway) Submit(ctx context.Context, mediaURL, name string) (string, error) {
	args := m.Called(ctx, mediaURL, name)
	return args.String(0), args.Error(1)
}

func (m *Gateway) GetState(ctx context.Context, videoID string) (status.State, error) {
	args := m.Called(ctx, videoID)
	return To[status.State](args.Get(0)), args.Error(1)
}

func (m *Gateway) GetArtifact(ctx context.Context, videoID string) (*api.Transcript, error) {
	args := m.Called(ctx, videoID)
	return To[*api.Transcript](args.Get(0)), args.Error(1)
}

// GatewayProvider mock
type GatewayProvider struct{ mock.Mock }

func (m *GatewayProvider) Get(srv string, allowNew bool) (api.Gateway, string, error) {
	args := m.Called(srv, allowNew)
	return To[api.Gateway](args.Get(0)), args.String(1), args.Error(2)
}

// Issuer is read url issuer mock
type Issuer struct{ mock.Mock }

func (m *Issuer) ReadURL(ctx context.Context, container, blob string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, container, blob, expiry)
	return args.String(0), args.Error(1)
}

// Indexer mock
type Indexer struct{ mock.Mock }

func (m *Indexer) Index(ctx context.Context, artifacts index.ArtifactProvider, src index.Source) (int, error) {
	args := m.Called(ctx, artifacts, src)
	return args.Int(0), args.Error(1)
}

// VideoLister mock
type VideoLister struct{ mock.Mock }

func (m *VideoLister) ListVideos(ctx context.Context) ([]*api.Video, error) {
	args := m.Called(ctx)
	return To[[]*api.Video](args.Get(0)), args.Error(1)
}

// To converts mock value to the type, nil is converted to zero value
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
