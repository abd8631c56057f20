package index

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
)

// BatchUploader uploads one batch of documents atomically
type BatchUploader interface {
	Upload(ctx context.Context, docs []*Document) error
}

// Config for the writer
type Config struct {
	BatchSize int
}

// DefaultBatchSize is the max documents sent in one call
const DefaultBatchSize = 1000

// IndexWriteError is returned when a chunk upload fails
type IndexWriteError struct {
	ChunkIndex int
	Cause      error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("can't upload chunk %d: %v", e.ChunkIndex, e.Cause)
}

func (e *IndexWriteError) Unwrap() error {
	return e.Cause
}

// Writer splits documents into chunks and uploads them in order
type Writer struct {
	uploader  BatchUploader
	batchSize int
}

// NewWriter creates the writer
func NewWriter(uploader BatchUploader, cfg Config) (*Writer, error) {
	if uploader == nil {
		return nil, fmt.Errorf("no uploader")
	}
	res := &Writer{uploader: uploader, batchSize: cfg.BatchSize}
	if res.batchSize <= 0 {
		res.batchSize = DefaultBatchSize
	}
	goapp.Log.Info().Int("batchSize", res.batchSize).Msg("index writer")
	return res, nil
}

// Write uploads docs chunk by chunk, stops on the first failure
func (w *Writer) Write(ctx context.Context, docs []*Document) error {
	for i, c := 0, 0; i < len(docs); i, c = i+w.batchSize, c+1 {
		end := i + w.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := w.uploader.Upload(ctx, docs[i:end]); err != nil {
			return &IndexWriteError{ChunkIndex: c, Cause: err}
		}
		goapp.Log.Debug().Int("chunk", c).Int("docs", end-i).Msg("uploaded")
	}
	return nil
}
