package index

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
)

// ArtifactProvider returns the finished transcript
type ArtifactProvider interface {
	GetArtifact(ctx context.Context, videoID string) (*api.Transcript, error)
}

// DocWriter writes all documents
type DocWriter interface {
	Write(ctx context.Context, docs []*Document) error
}

// Indexer fetches the transcript and writes it to the index
type Indexer struct {
	writer DocWriter
}

// NewIndexer creates the indexer
func NewIndexer(writer DocWriter) (*Indexer, error) {
	if writer == nil {
		return nil, fmt.Errorf("no writer")
	}
	return &Indexer{writer: writer}, nil
}

// Index loads the artifact and writes documents, returns the count of written docs
func (i *Indexer) Index(ctx context.Context, artifacts ArtifactProvider, src Source) (int, error) {
	tr, err := artifacts.GetArtifact(ctx, src.VideoID)
	if err != nil {
		return 0, fmt.Errorf("can't get transcript: %w", err)
	}
	docs := Map(src, tr)
	if len(docs) == 0 {
		goapp.Log.Warn().Str("videoID", src.VideoID).Msg("empty transcript")
		return 0, nil
	}
	if err := i.writer.Write(ctx, docs); err != nil {
		return 0, err
	}
	goapp.Log.Info().Str("videoID", src.VideoID).Int("docs", len(docs)).Msg("indexed")
	return len(docs), nil
}
