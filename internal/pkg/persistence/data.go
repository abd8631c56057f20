package persistence

import (
	"database/sql"
	"errors"
	"time"
)

type (
	// WorkflowInput is the correlation record shared by the workflow steps
	WorkflowInput struct {
		StorageAccountName string `json:"storageAccountName"`
		ContainerName      string `json:"containerName"`
		BlobName           string `json:"blobName"`
		VideoID            string `json:"videoId"`
		// Transcriber is a key of the transcription gateway that accepted the media
		Transcriber string `json:"transcriber,omitempty"`
	}

	//Workflow table
	Workflow struct {
		ID              string
		Input           WorkflowInput
		Phase           string
		ProcessingState sql.NullString
		Polls           int
		Errors          int
		Error           sql.NullString
		Documents       int
		Started         time.Time
		Expires         time.Time
		Created         time.Time
		Updated         time.Time
		Version         int
	}
)

// ErrStale is returned when the record was changed by another worker
var ErrStale = errors.New("stale record")
