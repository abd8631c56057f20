package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformedNotification is returned for a notification URL that does not point to a blob
var ErrMalformedNotification = errors.New("malformed notification")

const azureBlobHostSuffix = ".blob.core.windows.net"

var wfNamespace = uuid.MustParse("0c6a1f54-2d4b-4f7e-b1a6-6f3f0f9a2e11")

// BlobRef identifies the uploaded object
type BlobRef struct {
	Account   string
	Container string
	Blob      string
}

// ParseBlobURL parses https://{account}/{container}/{blob...}
func ParseBlobURL(s string) (*BlobRef, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("%w: wrong scheme '%s'", ErrMalformedNotification, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no host", ErrMalformedNotification)
	}
	container, blob, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if container == "" || blob == "" || strings.HasSuffix(blob, "/") {
		return nil, fmt.Errorf("%w: wrong path '%s'", ErrMalformedNotification, u.Path)
	}
	return &BlobRef{Account: strings.TrimSuffix(u.Hostname(), azureBlobHostSuffix), Container: container, Blob: blob}, nil
}

// Name returns the base name of the blob
func (b *BlobRef) Name() string {
	return path.Base(b.Blob)
}

// WorkflowID returns a stable workflow instance key of the blob version
func WorkflowID(b *BlobRef, eTag string) string {
	k := b.Account + "/" + b.Container + "/" + b.Blob
	if eTag != "" {
		k += "#" + strings.Trim(eTag, `"`)
	}
	return uuid.NewSHA1(wfNamespace, []byte(k)).String()
}
