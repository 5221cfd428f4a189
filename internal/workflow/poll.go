package workflow

import (
	"context"
	"errors"

	"relai/internal/models"
)

// Task is the handle of one polling run. It is created when a generation
// request is accepted and finishes on a terminal status, a transport failure,
// or cancellation.
type Task struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	job models.Job
	err error
}

func (t *Task) JobID() string { return t.jobID }

func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel stops polling and blocks until the polling goroutine has exited.
func (t *Task) Cancel() {
	t.cancel()
	<-t.done
}

// Result is only meaningful after Done is closed.
func (t *Task) Result() (models.Job, error) {
	return t.job, t.err
}

// startPolling must be called with c.mu held.
func (c *Controller) startPolling(jobID string) *Task {
	ctx, cancel := context.WithCancel(c.base)
	t := &Task{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
		job:    models.Job{ID: jobID, Status: models.JobPending},
	}
	c.poll = t
	c.last = t
	go c.run(ctx, t)
	return t
}

func (c *Controller) run(ctx context.Context, t *Task) {
	defer close(t.done)
	defer t.cancel()

	ticker := c.newTicker(c.interval)
	defer ticker.Stop()

	logger := c.log.With().Str("job", t.jobID).Logger()
	logger.Debug().Dur("interval", c.interval).Msg("polling started")

	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			t.err = ctx.Err()
			logger.Debug().Msg("polling cancelled")
			return
		case <-ticker.C():
		}

		status, err := c.generator.Status(ctx, t.jobID)
		if err != nil {
			if ctx.Err() != nil {
				t.err = ctx.Err()
				return
			}
			logger.Error().Err(err).Int("polls", polls).Msg("status check failed")
			c.finishPolling(t, models.Job{ID: t.jobID, Status: models.JobPending}, &PollingFailedError{
				JobID:   t.jobID,
				Message: err.Error(),
				Err:     err,
			})
			return
		}

		switch status.Status {
		case models.JobCompleted:
			logger.Info().Int("polls", polls).Msg("generation completed")
			c.finishPolling(t, models.Job{ID: t.jobID, Status: models.JobCompleted}, nil)
			return
		case models.JobFailed:
			detail := status.ErrorDetail
			if detail == "" {
				detail = "unknown error"
			}
			logger.Warn().Str("detail", detail).Int("polls", polls).Msg("generation failed")
			c.finishPolling(t, models.Job{ID: t.jobID, Status: models.JobFailed, ErrorDetail: detail}, &GenerationFailedError{
				JobID:  t.jobID,
				Detail: detail,
			})
			return
		default:
			logger.Debug().Int("polls", polls).Str("status", string(status.Status)).Msg("job still pending")
		}
	}
}

// finishPolling applies a terminal outcome unless the task was detached by a
// reset or teardown in the meantime.
func (c *Controller) finishPolling(t *Task, job models.Job, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t.job = job
	t.err = err

	if c.poll != t {
		return
	}
	c.poll = nil

	if err == nil {
		c.session.State = models.StateReady
		c.session.Job = &job
	} else {
		c.session.State = models.StateConfiguring
		c.session.Job = nil
	}
	c.touch()
}

// IsCancelled reports whether a polling result only reflects cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
