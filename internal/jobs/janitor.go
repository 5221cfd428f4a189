package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pruner removes sessions that have been idle since cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Janitor periodically prunes idle sessions.
type Janitor struct {
	cron     *cron.Cron
	pruner   Pruner
	schedule string
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewJanitor(pruner Pruner, schedule string, ttl time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		cron:     cron.New(),
		pruner:   pruner,
		schedule: schedule,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}
}

// Run schedules the sweep and blocks until ctx is done. A zero TTL disables
// pruning.
func (j *Janitor) Run(ctx context.Context) error {
	if j.ttl <= 0 {
		j.log.Info().Msg("session ttl not set, janitor disabled")
		<-ctx.Done()
		return nil
	}

	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep(ctx) }); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info().Str("schedule", j.schedule).Dur("ttl", j.ttl).Msg("janitor started")

	<-ctx.Done()
	stopped := j.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		j.log.Warn().Msg("janitor sweep still running at shutdown")
	}
	return nil
}

// Sweep runs one pruning pass.
func (j *Janitor) Sweep(ctx context.Context) {
	n, err := j.pruner.Prune(ctx, j.now().Add(-j.ttl))
	if err != nil {
		j.log.Error().Err(err).Msg("session prune failed")
		return
	}
	if n > 0 {
		j.log.Info().Int("sessions", n).Msg("pruned idle sessions")
	}
}
