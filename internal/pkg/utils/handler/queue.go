package handler

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/vgarvardt/gue/v5"
)

// Opts keeps the gue handler settings
type Opts[TM any] struct {
	backoff    gue.Backoff
	timeout    time.Duration
	maxRetries int32
	onFailure  func(context.Context, *TM, error) error
}

// Create helper func to wrapp gue worker main func.
// Retries failed jobs with backoff up to maxRetries times,
// then (or immediately on a permanent error) invokes failure func and drops the job
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		if err := json.Unmarshal(j.Args, &m); err != nil {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("could not unmarshal message, drop")
			return nil
		}
		wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
		defer cf()
		err := hf(wrkCtx, &m, data)
		if err == nil {
			return nil
		}
		goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("fail")
		if utils.IsPermanent(err) || j.ErrorCount >= opts.maxRetries {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).
				Bool("permanent", utils.IsPermanent(err)).Msg("msg failed, will not retry")
			if opts.onFailure == nil {
				return nil
			}
			if errF := opts.onFailure(ctx, &m, err); errF != nil {
				goapp.Log.Error().Err(errF).Str("queue", j.Queue).Str("type", j.Type).Msg("failure handler")
				if j.ErrorCount < opts.maxRetries+3 {
					return gue.ErrRescheduleJobIn(opts.backoff(int(j.ErrorCount+1)), errF.Error())
				}
			}
			return nil
		}
		delay := opts.backoff(int(j.ErrorCount + 1))
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry after")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

// DefaultOpts returns options with 15m timeout, 3 retries and jittered linear backoff
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, maxRetries: 3, backoff: DefaultBackoff()}
}

// DefaultBackoff return randomized linear backoff
func DefaultBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return fullJitter(time.Duration(retries) * time.Second * 10)
	}
}

// NoBackoff return zero backoff
func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

// DefaultBackoffOrTest returns NoBackoff in testing mode
func DefaultBackoffOrTest(test bool) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return DefaultBackoff()
}

// WithFailure sets a func invoked when the job is dropped after failures
func (o *Opts[TM]) WithFailure(onFailure func(context.Context, *TM, error) error) *Opts[TM] {
	o.onFailure = onFailure
	return o
}

// WithTimeout sets job timeout
func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	o.timeout = timeout
	return o
}

// WithBackoff sets backoff
func (o *Opts[TM]) WithBackoff(b gue.Backoff) *Opts[TM] {
	o.backoff = b
	return o
}

// WithMaxRetries sets retries count
func (o *Opts[TM]) WithMaxRetries(r int32) *Opts[TM] {
	o.maxRetries = r
	return o
}

// fullJitter return randomized duration in interval [0, t)
// as suggested by https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func fullJitter(t time.Duration) time.Duration {
	return time.Duration(float64(t) * rand.Float64())
}
