package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/status"
	"github.com/airenas/vidsearch/internal/pkg/utils"
)

// StateGetter queries the processing state of the video
type StateGetter interface {
	GetState(ctx context.Context, videoID string) (status.State, error)
}

// IndexFunc indexes the processed video, returns indexed documents count
type IndexFunc func(ctx context.Context, wf *persistence.Workflow) (int, error)

// ErrProcessingFailed is returned when the transcription service reports a terminal error state
type ErrProcessingFailed struct {
	VideoID string
	State   status.State
}

func (e *ErrProcessingFailed) Error() string {
	return fmt.Sprintf("video '%s' processing ended with state %s", e.VideoID, e.State)
}

// Monitor drives the workflow state machine
type Monitor struct {
	cfg   Config
	clock Clock
}

// New creates monitor
func New(cfg Config, clock Clock) (*Monitor, error) {
	if clock == nil {
		return nil, fmt.Errorf("no clock")
	}
	res := &Monitor{cfg: cfg.withDefaults(), clock: clock}
	goapp.Log.Info().Str("cfg", res.cfg.String()).Msg("monitor")
	return res, nil
}

// Start moves a new workflow to the polling phase, expiry time is fixed here
func (m *Monitor) Start(wf *persistence.Workflow) {
	now := m.clock.Now()
	wf.Phase = status.Polling.String()
	wf.Started = now
	wf.Expires = now.Add(m.cfg.MaxDuration)
	wf.Polls, wf.Errors = 0, 0
}

// Step makes one poll of the polling phase.
// Returns the time of the next poll if the workflow is still polling,
// or the failure reason if the workflow moved to failed phase
func (m *Monitor) Step(ctx context.Context, states StateGetter, wf *persistence.Workflow) (time.Time, error) {
	if status.PhaseFrom(wf.Phase) != status.Polling {
		return time.Time{}, fmt.Errorf("wrong phase '%s'", wf.Phase)
	}
	if !m.clock.Now().Before(wf.Expires) {
		wf.Phase = status.Expired.String()
		return time.Time{}, nil
	}
	wf.Polls++
	st, err := states.GetState(ctx, wf.Input.VideoID)
	if err != nil {
		wf.Errors++
		if utils.IsPermanent(err) || wf.Errors >= m.cfg.MaxErrors {
			return time.Time{}, m.fail(wf, fmt.Errorf("can't get state: %w", err))
		}
		goapp.Log.Warn().Err(err).Str("ID", wf.ID).Int("errors", wf.Errors).Msg("state query failed")
		return m.next(wf), nil
	}
	wf.Errors = 0
	wf.ProcessingState = utils.ToSQLStr(st.String())
	switch {
	case st == status.Processed:
		wf.Phase = status.Completing.String()
		return time.Time{}, nil
	case st.IsTerminalError():
		return time.Time{}, m.fail(wf, &ErrProcessingFailed{VideoID: wf.Input.VideoID, State: st})
	}
	return m.next(wf), nil
}

// Complete runs indexing of the completing workflow
func (m *Monitor) Complete(ctx context.Context, index IndexFunc, wf *persistence.Workflow) error {
	if status.PhaseFrom(wf.Phase) != status.Completing {
		return fmt.Errorf("wrong phase '%s'", wf.Phase)
	}
	n, err := index(ctx, wf)
	if err != nil {
		return err
	}
	wf.Documents = n
	wf.Phase = status.Completed.String()
	return nil
}

// Fail marks the workflow failed
func (m *Monitor) Fail(wf *persistence.Workflow, err error) {
	_ = m.fail(wf, err)
}

func (m *Monitor) fail(wf *persistence.Workflow, err error) error {
	wf.Phase = status.PhaseFailed.String()
	wf.Error = utils.ToSQLStr(err.Error())
	return err
}

func (m *Monitor) next(wf *persistence.Workflow) time.Time {
	res := m.clock.Now().Add(m.cfg.PollingInterval)
	if res.After(wf.Expires) {
		return wf.Expires
	}
	return res
}

// Run drives the workflow in process until it reaches a final phase.
// Returns nil on completed or expired workflow
func (m *Monitor) Run(ctx context.Context, states StateGetter, index IndexFunc, waiter Waiter,
	wf *persistence.Workflow) error {
	if wf.Phase == "" {
		m.Start(wf)
	}
	for {
		switch status.PhaseFrom(wf.Phase) {
		case status.Polling:
			next, err := m.Step(ctx, states, wf)
			if err != nil {
				goapp.Log.Error().Err(err).Str("ID", wf.ID).Msg("failed")
				return err
			}
			if status.PhaseFrom(wf.Phase) == status.Polling {
				if err := waiter.WaitUntil(ctx, next); err != nil {
					return fmt.Errorf("can't wait: %w", err)
				}
			}
		case status.Completing:
			if err := m.Complete(ctx, index, wf); err != nil {
				m.Fail(wf, err)
				goapp.Log.Error().Err(err).Str("ID", wf.ID).Msg("indexing failed")
				return err
			}
		case status.Completed:
			goapp.Log.Info().Str("ID", wf.ID).Int("docs", wf.Documents).Msg("completed")
			return nil
		case status.Expired:
			goapp.Log.Warn().Str("ID", wf.ID).Str("phase", wf.Phase).Int("polls", wf.Polls).Msg("gave up monitoring")
			return nil
		case status.PhaseFailed:
			return fmt.Errorf("workflow failed: %s", utils.FromSQLStr(wf.Error))
		default:
			return fmt.Errorf("wrong phase '%s'", wf.Phase)
		}
	}
}
