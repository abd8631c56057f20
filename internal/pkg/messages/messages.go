package messages

import (
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "VIDSEARCH/"
	// Ingest queue name for upload notifications
	Ingest = st + "Ingest"
	// Work queue name
	Work = st + "Work"
	// StatusChange queue name
	StatusChange = st + "StatusChange"
	// Inform  queue name
	Inform = st + "Inform"

	// WorkMonitor is a queue:type of monitor steps
	WorkMonitor = Work + ":wrk-monitor"
	// WorkFail is a queue:type of workflow failure messages
	WorkFail = Work + ":wrk-fail"

	// InformTypeExpired is sent when monitoring gave up waiting
	InformTypeExpired = "Expired"
)

// NotificationMessage is a new upload notification
type NotificationMessage struct {
	amessages.QueueMessage
	URL  string `json:"url"`
	ETag string `json:"eTag,omitempty"`
}

// WorkflowMessage drives the workflow steps, ID is a workflow instance ID
type WorkflowMessage struct {
	amessages.QueueMessage
	// Seq is the number of polls done before the message was scheduled
	Seq int `json:"seq,omitempty"`
}

// NewWorkflowMessage creates workflow message
func NewWorkflowMessage(ID string, seq int) *WorkflowMessage {
	return &WorkflowMessage{QueueMessage: amessages.QueueMessage{ID: ID}, Seq: seq}
}

// Options for sending message
type Options struct {
	Queue string
	Type  string
	RunAt time.Time
}

// DefaultOpts makes options from queue name.
// The name may be in form `queue:type`
func DefaultOpts(queue string) *Options {
	q, t, found := strings.Cut(queue, ":")
	if !found {
		return &Options{Queue: queue, Type: queue}
	}
	return &Options{Queue: q, Type: t}
}

// WithRunAt sets delayed run time
func (o *Options) WithRunAt(at time.Time) *Options {
	o.RunAt = at
	return o
}

// Envelope is a message with its send options
type Envelope struct {
	Msg  amessages.Message
	Opts *Options
}

// NewEnvelope creates envelope
func NewEnvelope(msg amessages.Message, opts *Options) *Envelope {
	return &Envelope{Msg: msg, Opts: opts}
}
