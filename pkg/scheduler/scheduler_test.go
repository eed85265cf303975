package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/scheduler"
)

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.NewScheduler(zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestAddCronAndRunNow(t *testing.T) {
	s := newScheduler(t)

	var runs atomic.Int32

	require.NoError(t, s.AddCron(context.Background(), "count", "0 4 * * *", func(context.Context) error {
		runs.Add(1)

		return nil
	}))

	info, err := s.GetJobInfoByName("count")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusScheduled, info.Status)
	assert.True(t, info.NextRun.After(time.Now()))

	require.NoError(t, s.RunNow("count"))

	assert.Eventually(t, func() bool {
		info, err := s.GetJobInfoByName("count")

		return err == nil && !info.LastSuccess.IsZero()
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, runs.Load())
}

func TestJobErrorIsRecorded(t *testing.T) {
	s := newScheduler(t)

	require.NoError(t, s.AddCron(context.Background(), "fail", "0 4 * * *", func(context.Context) error {
		return errors.New("disk full")
	}))
	require.NoError(t, s.RunNow("fail"))

	assert.Eventually(t, func() bool {
		info, err := s.GetJobInfoByName("fail")

		return err == nil && info.Status == scheduler.StatusError && info.Error == "disk full"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAddCronErrors(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	require.Error(t, s.AddCron(context.Background(), "bad", "not a cron", noop))

	require.NoError(t, s.AddCron(context.Background(), "a", "0 4 * * *", noop))
	require.Error(t, s.AddCron(context.Background(), "a", "0 5 * * *", noop))

	require.NoError(t, s.AddCron(context.Background(), "b", "0 5 * * *", noop))

	infos := s.GetJobInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)

	require.NoError(t, s.RemoveJobByName("a"))
	require.ErrorIs(t, s.RemoveJobByName("a"), scheduler.ErrJobNotFound)
	require.ErrorIs(t, s.RunNow("a"), scheduler.ErrJobNotFound)
}
