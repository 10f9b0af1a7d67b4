package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name    string
	runs    atomic.Int32
	block   chan struct{}
	started chan struct{}
	err     error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.started != nil {
		close(j.started)
	}
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJobRejects(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(&countingJob{name: "bad"}, "not a spec"))
	require.NoError(t, s.AddJob(&countingJob{name: "prefetch"}, "*/5 * * * *"))
	require.Error(t, s.AddJob(&countingJob{name: "prefetch"}, "@hourly"))
	require.Error(t, s.Trigger("missing"))
}

func TestTriggerRunsJob(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "prefetch", err: errors.New("boom")}
	require.NoError(t, s.AddJob(job, "@daily"))
	require.NoError(t, s.Trigger("prefetch"))
	require.NoError(t, s.Trigger("prefetch"))
	require.Equal(t, int32(2), job.runs.Load())
}

func TestTriggerSkipsOverlap(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{}), started: make(chan struct{})}
	require.NoError(t, s.AddJob(job, "@daily"))
	done := make(chan struct{})
	go func() {
		_ = s.Trigger("slow")
		close(done)
	}()
	<-job.started
	job.started = nil
	require.NoError(t, s.Trigger("slow"))
	close(job.block)
	<-done
	require.Equal(t, int32(1), job.runs.Load())
}

func TestCancelledContextSkipsRun(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "prefetch"}
	require.NoError(t, s.AddJob(job, "@daily"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
	defer s.Stop()
	require.NoError(t, s.Trigger("prefetch"))
	require.Equal(t, int32(0), job.runs.Load())
}
