package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

type fakeSnapshotter struct {
	n   int
	err error
	ctx context.Context
}

func (f *fakeSnapshotter) SnapshotAll(ctx context.Context) (int, error) {
	f.ctx = ctx
	return f.n, f.err
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
	assert.Zero(t, s.Entries())
}

func TestAddJobAcceptsSecondsField(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 5 21 * * MON-FRI", &countingJob{}))
	assert.Equal(t, 1, s.Entries())
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestRunNowReturnsJobError(t *testing.T) {
	s := New(zerolog.Nop())
	boom := errors.New("boom")
	job := &countingJob{err: boom}

	assert.ErrorIs(t, s.RunNow(job), boom)
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestNetWorthSnapshotJob(t *testing.T) {
	snaps := &fakeSnapshotter{n: 3}
	job := NewNetWorthSnapshotJob(snaps, zerolog.Nop())
	s := New(zerolog.Nop())

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, "networth_snapshot", job.Name())

	_, hasDeadline := snaps.ctx.Deadline()
	assert.True(t, hasDeadline, "job runs are bounded")
}

func TestNetWorthSnapshotJobPropagatesError(t *testing.T) {
	boom := errors.New("db down")
	job := NewNetWorthSnapshotJob(&fakeSnapshotter{err: boom}, zerolog.Nop())

	assert.ErrorIs(t, New(zerolog.Nop()).RunNow(job), boom)
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New(zerolog.Nop())
	s.Start()
	s.Stop()

	snaps := &fakeSnapshotter{}
	_ = s.RunNow(NewNetWorthSnapshotJob(snaps, zerolog.Nop()))
	assert.Error(t, snaps.ctx.Err())
}
