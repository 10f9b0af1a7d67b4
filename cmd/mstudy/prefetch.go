package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/mstudy/internal/schedule"
)

func newPrefetchCmd() *cobra.Command {
	var configPath string
	var cleanup bool
	cmd := &cobra.Command{
		Use:   "prefetch",
		Short: "summarize pending documents once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			conn, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			a, err := newApp(ctx, cfg, conn)
			if err != nil {
				return err
			}
			prefetch := a.prefetchJob()
			if prefetch == nil {
				return fmt.Errorf("prefetch needs source.type=db")
			}
			jobs := []schedule.Job{prefetch}
			if cleanup {
				jobs = append(jobs, a.cleanupJob())
			}
			return runJobs(ctx, jobs)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "also prune expired artifacts")
	return cmd
}

// runJobs runs jobs concurrently and returns the first failure. The remaining
// jobs see a cancelled context once one fails.
func runJobs(ctx context.Context, jobs []schedule.Job) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			logutil.GetLogger(gctx).Info("running job", zap.String("job", j.Name()))
			if err := j.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", j.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
