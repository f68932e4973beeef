package summons

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rechtstreeks/internal/domain"
)

const reapReason = "generation exceeded time limit"

// Reaper reverts sections whose generation outlived the ceiling plus a grace period.
type Reaper struct {
	Store    Store
	Timeout  time.Duration
	Grace    time.Duration
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// Sweep runs one reaping pass and returns the sections it reverted.
func (r *Reaper) Sweep(ctx context.Context) ([]domain.Section, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	cutoff := now().Add(-(r.Timeout + r.Grace))
	expired, err := r.Store.ExpireGenerations(ctx, cutoff, reapReason)
	if err != nil {
		return nil, err
	}
	for _, sec := range expired {
		r.logger().Warn("generation reaped",
			zap.String("summons_id", sec.SummonsID),
			zap.String("section_key", string(sec.Key)),
			zap.String("generation_id", sec.GenerationID),
			zap.String("status", string(sec.Status)),
		)
		if err := r.Store.InsertAudit(ctx, sec.SummonsID, sec.Key, domain.CommandFail, sec.Status, map[string]any{
			"generation_id": sec.GenerationID,
			"reason":        reapReason,
		}); err != nil {
			r.logger().Warn("audit insert failed", zap.Error(err))
		}
	}
	return expired, nil
}

// Run sweeps every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger().Error("reaper sweep failed", zap.Error(err))
			}
		}
	}
}

func (r *Reaper) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
