package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rre_filing_agent/internal/app/lifecycle"
)

type countingRunner struct {
	submits atomic.Int32
	polls   atomic.Int32
	err     error
}

func (r *countingRunner) SubmitPending(ctx context.Context) (*lifecycle.RunReport, error) {
	r.submits.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("job context has no deadline")
	}
	return &lifecycle.RunReport{Job: "submit"}, r.err
}

func (r *countingRunner) PollPending(context.Context) (*lifecycle.RunReport, error) {
	r.polls.Add(1)
	return &lifecycle.RunReport{Job: "poll"}, r.err
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewFilingScheduler(&countingRunner{}, quietLogger(), "not a spec", "*/15 * * * *", time.Minute)
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit")
}

func TestJobsRunOnSchedule(t *testing.T) {
	runner := &countingRunner{}
	s := NewFilingScheduler(runner, quietLogger(), "@every 1s", "@every 1s", time.Minute)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runner.submits.Load() > 0 && runner.polls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRunJobSurvivesErrors(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom")}
	s := NewFilingScheduler(runner, quietLogger(), "@every 1h", "@every 1h", time.Minute)

	s.runJob("submit", runner.SubmitPending)
	s.runJob("poll", runner.PollPending)
	assert.Equal(t, int32(1), runner.submits.Load())
	assert.Equal(t, int32(1), runner.polls.Load())
}

// blockingRunner holds each run until its context ends.
type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) SubmitPending(ctx context.Context) (*lifecycle.RunReport, error) {
	select {
	case r.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *blockingRunner) PollPending(ctx context.Context) (*lifecycle.RunReport, error) {
	return r.SubmitPending(ctx)
}

func TestStopCancelsRunningJobs(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1)}
	s := NewFilingScheduler(runner, quietLogger(), "@every 1s", "@every 1h", time.Hour)
	require.NoError(t, s.Start())

	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("submit job never started")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop waited for the job timeout instead of cancelling the run")
	}
}
