package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config for the object storage
type Config struct {
	URL    string
	User   string
	Key    string
	Region string
	Bucket string
	// Account is the storage identity put into notification URLs
	Account string
	Secure  bool
}

// NewClient creates minio client
func NewClient(cfg Config) (*minio.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("no storage url")
	}
	res, err := minio.New(cfg.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.User, cfg.Key, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	goapp.Log.Info().Str("url", cfg.URL).Str("user", cfg.User).Bool("secure", cfg.Secure).Msg("minio")
	return res, nil
}

// Issuer makes presigned read URLs
type Issuer struct {
	client *minio.Client
}

// NewIssuer creates the issuer
func NewIssuer(client *minio.Client) (*Issuer, error) {
	if client == nil {
		return nil, fmt.Errorf("no minio client")
	}
	return &Issuer{client: client}, nil
}

// ReadURL returns a presigned GET URL valid for expiry
func (i *Issuer) ReadURL(ctx context.Context, container, blob string, expiry time.Duration) (string, error) {
	u, err := i.client.PresignedGetObject(ctx, container, blob, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("can't presign %s/%s: %w", container, blob, err)
	}
	return u.String(), nil
}
