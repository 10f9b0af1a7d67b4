package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mstudy/internal/ai"
	"github.com/xxxsen/mstudy/internal/config"
	"github.com/xxxsen/mstudy/internal/db"
	"github.com/xxxsen/mstudy/internal/filestore"
	"github.com/xxxsen/mstudy/internal/job"
	"github.com/xxxsen/mstudy/internal/repo"
	"github.com/xxxsen/mstudy/internal/respcache"
	"github.com/xxxsen/mstudy/internal/schedule"
	"github.com/xxxsen/mstudy/internal/service"
)

// app holds everything the server and the prefetch command share.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	docs      *repo.DocumentRepo
	artifacts *repo.ArtifactRepo
	attempts  *repo.ExamAttemptRepo
	responses *repo.ResponseCacheRepo
	study     *service.StudyService
	documents *service.DocumentService
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return conn, nil
}

func buildGenerator(ctx context.Context, cfg *config.Config) (service.Generator, error) {
	if len(cfg.AI.Providers) == 0 {
		logutil.GetLogger(ctx).Warn("no ai providers configured, all output is generated locally")
		return nil, nil
	}
	specs := make([]ai.ProviderSpec, 0, len(cfg.AI.Providers))
	for _, p := range cfg.AI.Providers {
		specs = append(specs, ai.ProviderSpec{
			Name:      p.Name,
			Type:      p.Type,
			Timeout:   time.Duration(p.TimeoutMs) * time.Millisecond,
			MaxTokens: p.MaxTokens,
			Data:      p.Data,
		})
	}
	chain, err := ai.BuildChain(specs)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("ai provider chain ready", zap.Strings("providers", chain.Names()))
	return chain, nil
}

func studyConfig(cfg *config.Config) service.StudyConfig {
	return service.StudyConfig{
		ContextLimit:    cfg.Pipeline.ContextLimit,
		CacheSize:       cfg.Pipeline.CacheSize,
		CacheTTL:        time.Duration(cfg.Pipeline.CacheTTLSeconds) * time.Second,
		GuidanceMinHits: cfg.Pipeline.GuidanceMinHits,
	}
}

func newApp(ctx context.Context, cfg *config.Config, conn *sql.DB) (*app, error) {
	a := &app{
		cfg:       cfg,
		db:        conn,
		docs:      repo.NewDocumentRepo(conn),
		artifacts: repo.NewArtifactRepo(conn),
		attempts:  repo.NewExamAttemptRepo(conn),
		responses: repo.NewResponseCacheRepo(conn),
	}
	var source service.DocumentSource = a.docs
	if cfg.Source.Type == config.SourceDB {
		a.documents = service.NewDocumentService(a.docs)
	} else {
		store, err := filestore.New(cfg.Source.Type, cfg.Source.Data)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		source = filestore.NewSource(store, cfg.Source.MaxBytes)
	}
	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if gen != nil && cfg.Pipeline.ResponseCacheHours > 0 {
		gen = respcache.WrapDBCacheToGenerator(gen, a.responses, time.Duration(cfg.Pipeline.ResponseCacheHours)*time.Hour)
	}
	a.study = service.NewStudyService(source, gen, a.artifacts, a.attempts, studyConfig(cfg))
	return a, nil
}

// prefetchJob is nil when documents do not live in the database.
func (a *app) prefetchJob() schedule.Job {
	if a.documents == nil {
		return nil
	}
	return job.NewSummaryPrefetchJob(a.study, a.docs, a.cfg.Schedule.PrefetchBatch, a.cfg.Schedule.PrefetchDelaySeconds)
}

func (a *app) cleanupJob() schedule.Job {
	return job.NewArtifactCleanupJob(a.cfg.Schedule.ArtifactRetentionDays, a.artifacts, a.attempts, a.responses)
}

func (a *app) newScheduler(ctx context.Context) (*schedule.CronScheduler, error) {
	sched := schedule.NewCronScheduler()
	if spec := a.cfg.Schedule.PrefetchSpec; spec != "" {
		if j := a.prefetchJob(); j != nil {
			if err := sched.AddJob(j, spec); err != nil {
				return nil, fmt.Errorf("schedule prefetch: %w", err)
			}
		} else {
			logutil.GetLogger(ctx).Warn("summary prefetch needs source.type=db, job disabled")
		}
	}
	if spec := a.cfg.Schedule.CleanupSpec; spec != "" {
		if err := sched.AddJob(a.cleanupJob(), spec); err != nil {
			return nil, fmt.Errorf("schedule cleanup: %w", err)
		}
	}
	return sched, nil
}
