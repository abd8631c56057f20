package api

import (
	"context"

	"github.com/airenas/vidsearch/internal/pkg/status"
)

type (
	// VideoIndex keeps the processing info of a video
	VideoIndex struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
	}

	// Video is an item of the videos list
	Video struct {
		ID                 string `json:"id"`
		Name               string `json:"name"`
		State              string `json:"state"`
		ProcessingProgress string `json:"processingProgress"`
		Created            string `json:"created"`
		DurationInSeconds  int    `json:"durationInSeconds"`
	}

	// Transcript is the transcription artifact
	Transcript struct {
		RecognizedPhrases []RecognizedPhrase `json:"recognizedPhrases"`
	}

	// RecognizedPhrase is one recognized phrase with alternatives
	RecognizedPhrase struct {
		OffsetInTicks int64         `json:"offsetInTicks"`
		NBest         []Alternative `json:"nBest"`
	}

	// Alternative is one recognition hypothesis
	Alternative struct {
		Display    string  `json:"display"`
		Confidence float64 `json:"confidence"`
	}
)

// Gateway is the transcription service surface used by the workflow
type Gateway interface {
	Submit(ctx context.Context, mediaURL, name string) (string, error)
	GetState(ctx context.Context, videoID string) (status.State, error)
	GetArtifact(ctx context.Context, videoID string) (*Transcript, error)
}
