package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, *messages.Options) error
}

// Listener converts bucket created events to ingest messages
type Listener struct {
	client  *minio.Client
	sender  MsgSender
	bucket  string
	account string
	retry   time.Duration
	backoff func() backoff.BackOff
}

// NewListener creates the listener
func NewListener(client *minio.Client, sender MsgSender, cfg Config) (*Listener, error) {
	if client == nil {
		return nil, fmt.Errorf("no minio client")
	}
	if sender == nil {
		return nil, fmt.Errorf("no msg sender")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	if cfg.Account == "" {
		return nil, fmt.Errorf("no account")
	}
	return &Listener{client: client, sender: sender, bucket: cfg.Bucket, account: cfg.Account,
		retry: 5 * time.Second, backoff: newSendBackoff}, nil
}

// Start listens for events until ctx is done
func (l *Listener) Start(ctx context.Context) (<-chan struct{}, error) {
	goapp.Log.Info().Str("bucket", l.bucket).Msg("Starting bucket listener")
	res := make(chan struct{}, 1)
	go func() {
		defer close(res)
		for {
			l.listen(ctx)
			select {
			case <-ctx.Done():
				goapp.Log.Info().Msg("Stopped bucket listener")
				return
			case <-time.After(l.retry):
				goapp.Log.Warn().Msg("relisten bucket")
			}
		}
	}()
	return res, nil
}

func (l *Listener) listen(ctx context.Context) {
	for info := range l.client.ListenBucketNotification(ctx, l.bucket, "", "", []string{"s3:ObjectCreated:*"}) {
		if info.Err != nil {
			goapp.Log.Error().Err(info.Err).Msg("bucket notification")
			continue
		}
		for _, m := range toMessages(l.account, info) {
			if err := l.send(ctx, m); err != nil {
				goapp.Log.Error().Err(err).Str("url", utils.HideQuery(m.URL)).Msg("can't send notification")
			}
		}
	}
}

// send retries until the message is enqueued or ctx is done, a bucket event is not redelivered
func (l *Listener) send(ctx context.Context, m *messages.NotificationMessage) error {
	_, err := goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		if err := l.sender.SendMessage(ctx, m, messages.DefaultOpts(messages.Ingest)); err != nil {
			goapp.Log.Warn().Err(err).Str("url", utils.HideQuery(m.URL)).Msg("can't send notification, retry")
			return nil, ctx.Err() == nil, err
		}
		return nil, false, nil
	}, backoff.WithContext(l.backoff(), ctx))
	return err
}

func newSendBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	res.MaxInterval = time.Minute
	res.MaxElapsedTime = 0
	return res
}

func toMessages(account string, info notification.Info) []*messages.NotificationMessage {
	res := []*messages.NotificationMessage{}
	for _, r := range info.Records {
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("key", r.S3.Object.Key).Msg("wrong key")
			continue
		}
		if !utils.IsMediaFile(key) {
			goapp.Log.Info().Str("key", key).Msg("not a media file, skip")
			continue
		}
		u := url.URL{Scheme: "https", Host: account, Path: "/" + r.S3.Bucket.Name + "/" + key}
		res = append(res, &messages.NotificationMessage{URL: u.String(), ETag: r.S3.Object.ETag})
	}
	return res
}
