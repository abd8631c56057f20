package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/test"
	"github.com/airenas/vidsearch/internal/pkg/test/mocks"
	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newEvent(bucket, key, eTag string) notification.Event {
	res := notification.Event{EventName: "s3:ObjectCreated:Put"}
	res.S3.Bucket.Name = bucket
	res.S3.Object.Key = key
	res.S3.Object.ETag = eTag
	return res
}

func Test_toMessages(t *testing.T) {
	got := toMessages("st.local", notification.Info{Records: []notification.Event{
		newEvent("videos", "a.mp4", "e1"),
		newEvent("videos", "dir%2Fb+c.MP3", "e2"),
		newEvent("videos", "notes.txt", "e3"),
	}})

	require.Equal(t, 2, len(got))
	assert.Equal(t, "https://st.local/videos/a.mp4", got[0].URL)
	assert.Equal(t, "e1", got[0].ETag)
	assert.Equal(t, "https://st.local/videos/dir/b%20c.MP3", got[1].URL)
	assert.Equal(t, "e2", got[1].ETag)
}

func Test_toMessages_Empty(t *testing.T) {
	assert.Empty(t, toMessages("st.local", notification.Info{}))
}

func TestNewListener(t *testing.T) {
	c, err := NewClient(Config{URL: "localhost:9000", User: "u", Key: "k"})
	require.Nil(t, err)
	sender := &mocks.Sender{}
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "OK", cfg: Config{Bucket: "b", Account: "a"}, wantErr: false},
		{name: "No bucket", cfg: Config{Account: "a"}, wantErr: true},
		{name: "No account", cfg: Config{Bucket: "b"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewListener(c, sender, tt.cfg)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
	_, err = NewListener(nil, sender, Config{Bucket: "b", Account: "a"})
	assert.NotNil(t, err)
	_, err = NewListener(c, nil, Config{Bucket: "b", Account: "a"})
	assert.NotNil(t, err)
}

func newTestListener(sender *mocks.Sender) *Listener {
	return &Listener{sender: sender, bucket: "b", account: "a",
		backoff: func() backoff.BackOff { return &backoff.ZeroBackOff{} }}
}

func TestListener_send(t *testing.T) {
	sender := &mocks.Sender{}
	sender.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	msg := &messages.NotificationMessage{URL: "https://a/b/c.mp4", ETag: "e1"}

	err := newTestListener(sender).send(test.Ctx(t), msg)

	assert.Nil(t, err)
	require.Equal(t, 1, len(sender.Calls))
	assert.Equal(t, msg, sender.Calls[0].Arguments[1])
	assert.Equal(t, messages.DefaultOpts(messages.Ingest), sender.Calls[0].Arguments[2])
}

func TestListener_send_Retries(t *testing.T) {
	sender := &mocks.Sender{}
	sender.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("olia")).Twice()
	sender.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := newTestListener(sender).send(test.Ctx(t), &messages.NotificationMessage{URL: "https://a/b/c.mp4"})

	assert.Nil(t, err)
	assert.Equal(t, 3, len(sender.Calls))
}

func TestListener_send_StopsOnCtx(t *testing.T) {
	sender := &mocks.Sender{}
	ctx, cf := context.WithCancel(test.Ctx(t))
	sender.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("olia")).
		Run(func(args mock.Arguments) { cf() })

	err := newTestListener(sender).send(ctx, &messages.NotificationMessage{URL: "https://a/b/c.mp4"})

	assert.NotNil(t, err)
	assert.Equal(t, 1, len(sender.Calls))
}

func Test_newSendBackoff(t *testing.T) {
	b := newSendBackoff().(*backoff.ExponentialBackOff)
	assert.Equal(t, time.Duration(0), b.MaxElapsedTime)
	assert.NotEqual(t, backoff.Stop, b.NextBackOff())
}
