package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mstudy/internal/schedule"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestRunJobs(t *testing.T) {
	var ran atomic.Int32
	ok := func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}
	require.NoError(t, runJobs(context.Background(), []schedule.Job{
		funcJob{name: "a", run: ok},
		funcJob{name: "b", run: ok},
	}))
	require.Equal(t, int32(2), ran.Load())

	boom := errors.New("boom")
	err := runJobs(context.Background(), []schedule.Job{
		funcJob{name: "fails", run: func(ctx context.Context) error { return boom }},
		funcJob{name: "waits", run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}},
	})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "fails")
}
