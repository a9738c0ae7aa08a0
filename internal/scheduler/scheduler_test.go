package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/pkg/logger"
)

// flakyJob fails its first `failures` runs
type flakyJob struct {
	name     string
	failures int32
	calls    atomic.Int32
	block    chan struct{}
}

func (j *flakyJob) Name() string     { return j.name }
func (j *flakyJob) Schedule() string { return "0 30 18 * * 1-5" }

func (j *flakyJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= j.failures {
		return errors.New("upstream unavailable")
	}
	return nil
}

func fastScheduler(retries int) *Scheduler {
	return New(Options{MaxRetries: retries, RetryDelay: time.Millisecond}, logger.Nop())
}

func TestScheduler_AddJob(t *testing.T) {
	s := fastScheduler(0)

	require.NoError(t, s.AddJob(&flakyJob{name: "rebuild"}))
	assert.Error(t, s.AddJob(&flakyJob{name: "rebuild"}), "duplicate name")
	assert.Equal(t, []string{"rebuild"}, s.Jobs())

	require.NoError(t, s.RemoveJob("rebuild"))
	assert.Empty(t, s.Jobs())
	assert.Error(t, s.RemoveJob("rebuild"))
}

type badScheduleJob struct{ flakyJob }

func (*badScheduleJob) Schedule() string { return "every tuesday" }

func TestScheduler_AddJobRejectsBadSchedule(t *testing.T) {
	s := fastScheduler(0)
	assert.Error(t, s.AddJob(&badScheduleJob{flakyJob{name: "bad"}}))
	assert.Empty(t, s.Jobs())
}

func TestScheduler_Retries(t *testing.T) {
	tests := []struct {
		name        string
		retries     int
		failures    int32
		wantSuccess bool
		wantCalls   int32
	}{
		{"first try", 3, 0, true, 1},
		{"recovers on retry", 3, 2, true, 3},
		{"gives up", 2, 5, false, 3},
		{"no retries", 0, 1, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fastScheduler(tt.retries)
			job := &flakyJob{name: "job", failures: tt.failures}
			require.NoError(t, s.AddJob(job))

			result := s.runJob(job)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantCalls, job.calls.Load())
			assert.Equal(t, int(tt.wantCalls), result.Attempts)
			if !tt.wantSuccess {
				assert.Equal(t, "upstream unavailable", result.Error)
			}

			history, err := s.History("job")
			require.NoError(t, err)
			require.Len(t, history, 1)

			stats := s.Stats()["job"]
			assert.Equal(t, 1, stats.TotalRuns)
			require.NotNil(t, stats.LastRun)
			if tt.wantSuccess {
				assert.Equal(t, 1.0, stats.SuccessRate)
				assert.NotNil(t, stats.LastSuccess)
			} else {
				assert.Equal(t, 1, stats.FailureCount)
				assert.NotNil(t, stats.LastFailure)
			}
		})
	}
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	s := fastScheduler(0)
	job := &flakyJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	done := make(chan JobResult)
	go func() { done <- s.runJob(job) }()
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, time.Millisecond)

	skipped := s.runJob(job)
	assert.False(t, skipped.Success)
	assert.Contains(t, skipped.Error, "already running")

	close(job.block)
	assert.True(t, (<-done).Success)
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := New(Options{MaxRetries: 5, RetryDelay: time.Hour}, logger.Nop())
	job := &flakyJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))
	s.Start()

	require.NoError(t, s.RunNow("slow"))
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.Stop()

	history, err := s.History("slow")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Equal(t, 1, history[0].Attempts, "no retry after stop")
}

func TestScheduler_RunNowUnknown(t *testing.T) {
	assert.Error(t, fastScheduler(0).RunNow("missing"))
}

func TestScheduler_RunAndWait(t *testing.T) {
	s := fastScheduler(2)
	job := &flakyJob{name: "rebuild", failures: 1}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunAndWait("rebuild")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)

	history, err := s.History("rebuild")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = s.RunAndWait("missing")
	assert.Error(t, err)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.SuccessRate())
	assert.Empty(t, h.Latest(5))

	for i := 0; i < historyLimit+10; i++ {
		h.AddResult(JobResult{Success: i%4 != 0, Attempts: i})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.Equal(t, 10, h.Results[0].Attempts, "oldest dropped first")

	latest := h.Latest(2)
	assert.Equal(t, []int{historyLimit + 8, historyLimit + 9}, []int{latest[0].Attempts, latest[1].Attempts})

	// attempts 10..109: multiples of 4 fail
	assert.Equal(t, 25, h.Failures())
	assert.InDelta(t, 0.75, h.SuccessRate(), 1e-12)
}
