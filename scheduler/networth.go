package scheduler

import (
	"context"

	"github.com/rs/zerolog"
)

// Snapshotter records net worth snapshots for every user.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) (int, error)
}

// NetWorthSnapshotJob records one net worth snapshot per user per run.
type NetWorthSnapshotJob struct {
	snapshots Snapshotter
	log       zerolog.Logger
}

func NewNetWorthSnapshotJob(snapshots Snapshotter, log zerolog.Logger) *NetWorthSnapshotJob {
	return &NetWorthSnapshotJob{
		snapshots: snapshots,
		log:       log.With().Str("job", "networth_snapshot").Logger(),
	}
}

// Name returns the job name
func (j *NetWorthSnapshotJob) Name() string {
	return "networth_snapshot"
}

func (j *NetWorthSnapshotJob) Run(ctx context.Context) error {
	n, err := j.snapshots.SnapshotAll(ctx)
	if err != nil {
		return err
	}
	j.log.Info().Int("recorded", n).Msg("Net worth snapshot run finished")
	return nil
}
