package drafts

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor deletes drafts that have not been updated within the TTL.
type Janitor struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
	cron  *cron.Cron
	now   func() time.Time
}

// NewJanitor schedules purges with a standard five-field cron spec, e.g.
// "0 3 * * *" for 03:00 daily.
func NewJanitor(store Store, ttl time.Duration, spec string, log *zap.Logger) (*Janitor, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("draft ttl must be positive, got %s", ttl)
	}
	if log == nil {
		log = zap.NewNop()
	}
	j := &Janitor{
		store: store,
		ttl:   ttl,
		log:   log,
		cron:  cron.New(cron.WithLocation(time.UTC)),
		now:   time.Now,
	}
	_, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			j.log.Error("draft purge failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}
	return j, nil
}

// RunOnce purges stale drafts now.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.ttl)
	n, err := j.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return n, err
	}
	j.log.Info("purged stale drafts", zap.Int("count", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// Start runs the schedule in the background.
func (j *Janitor) Start() {
	j.log.Info("draft janitor started", zap.Duration("ttl", j.ttl))
	j.cron.Start()
}

// Stop halts the schedule and waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
