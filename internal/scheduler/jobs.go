package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenPurger drops revoked tokens and login throttling records that have
// expired.
type TokenPurger interface {
	PurgeExpired() int
}

// Snapshotter appends a valuation point to every stored portfolio.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) (int, error)
}

// SessionEvicter drops market sessions that have been idle for too long.
type SessionEvicter interface {
	EvictIdle(maxIdle time.Duration) int
}

type TokenCleanupJob struct {
	Auth TokenPurger
	Log  *logrus.Logger
}

func (j TokenCleanupJob) Name() string { return "token_cleanup" }

func (j TokenCleanupJob) Run(ctx context.Context) error {
	if n := j.Auth.PurgeExpired(); n > 0 {
		j.Log.WithField("purged", n).Info("Expired auth records removed")
	}
	return nil
}

type ValuationSnapshotJob struct {
	Portfolios Snapshotter
	Log        *logrus.Logger
}

func (j ValuationSnapshotJob) Name() string { return "valuation_snapshot" }

func (j ValuationSnapshotJob) Run(ctx context.Context) error {
	n, err := j.Portfolios.SnapshotAll(ctx)
	if err != nil {
		return err
	}
	j.Log.WithField("portfolios", n).Info("Valuation snapshot recorded")
	return nil
}

type SessionEvictionJob struct {
	Sessions SessionEvicter
	MaxIdle  time.Duration
	Log      *logrus.Logger
}

func (j SessionEvictionJob) Name() string { return "session_eviction" }

func (j SessionEvictionJob) Run(ctx context.Context) error {
	if n := j.Sessions.EvictIdle(j.MaxIdle); n > 0 {
		j.Log.WithField("evicted", n).Info("Idle market sessions removed")
	}
	return nil
}
