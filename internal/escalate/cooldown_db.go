package escalate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AnalysisLog is the persistence surface DBCooldowns needs. Both store
// backends satisfy it.
type AnalysisLog interface {
	SetAnalyzed(ctx context.Context, marketKey string, at time.Time) error
	GetAnalyzed(ctx context.Context, marketKey string) (time.Time, bool, error)
	CountAnalyzed(ctx context.Context) (int, error)
	PruneAnalyzed(ctx context.Context, before time.Time) (int, error)
}

// DBCooldowns is a CooldownStore on the scanner's own database, for
// deployments that run without redis. Read failures count as misses, the
// same posture as RedisCooldowns: a spurious re-analysis costs pennies,
// a blocked run costs the whole cycle.
type DBCooldowns struct {
	log AnalysisLog
}

// NewDBCooldowns wraps a store backend.
func NewDBCooldowns(log AnalysisLog) *DBCooldowns {
	return &DBCooldowns{log: log}
}

func (d *DBCooldowns) LastAnalyzed(ctx context.Context, marketKey string) (time.Time, bool) {
	at, ok, err := d.log.GetAnalyzed(ctx, marketKey)
	if err != nil {
		zap.L().Warn("escalate: cooldown get failed", zap.String("market", marketKey), zap.Error(err))
		return time.Time{}, false
	}
	return at, ok
}

func (d *DBCooldowns) Mark(ctx context.Context, marketKey string, at time.Time) error {
	if err := d.log.SetAnalyzed(ctx, marketKey, at); err != nil {
		return eris.Wrapf(err, "escalate: mark cooldown %s", marketKey)
	}
	// Sweep stale records while we are here; marks are rare enough (a
	// handful per run) that the extra delete does not matter.
	if _, err := d.log.PruneAnalyzed(ctx, at.Add(-cooldownRetention)); err != nil {
		zap.L().Warn("escalate: cooldown prune failed", zap.Error(err))
	}
	return nil
}

func (d *DBCooldowns) Count(ctx context.Context) int {
	n, err := d.log.CountAnalyzed(ctx)
	if err != nil {
		zap.L().Warn("escalate: cooldown count failed", zap.Error(err))
		return 0
	}
	return n
}
