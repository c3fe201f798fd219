package auth

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/store"
)

// Janitor deletes expired tokens on a cron schedule.
type Janitor struct {
	db     *store.DB
	cron   string
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor creates a janitor. The cron expression is validated by the config layer.
func NewJanitor(db *store.DB, cron string, logger *zap.Logger) *Janitor {
	return &Janitor{db: db, cron: cron, logger: logger.Named("janitor")}
}

// Start runs the schedule until Stop.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})
	go func() {
		defer close(j.done)
		for {
			next, err := gronx.NextTickAfter(j.cron, time.Now(), false)
			if err != nil {
				j.logger.Error("invalid token cleanup schedule", zap.String("cron", j.cron), zap.Error(err))
				return
			}
			select {
			case <-time.After(time.Until(next)):
				j.RunOnce(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the schedule.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
}

// RunOnce removes tokens that expired before now.
func (j *Janitor) RunOnce(now time.Time) int64 {
	n, err := j.db.DeleteExpiredTokens(now)
	if err != nil {
		j.logger.Error("token cleanup failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		j.logger.Info("expired tokens removed", zap.Int64("count", n))
	}
	return n
}
