package job

import (
	"context"

	"github.com/xxxsen/mstudy/internal/service"
)

type SummaryPrefetchJob struct {
	study        *service.StudyService
	pending      service.PendingLister
	batch        int
	delaySeconds int64
}

func NewSummaryPrefetchJob(study *service.StudyService, pending service.PendingLister, batch int, delaySeconds int64) *SummaryPrefetchJob {
	return &SummaryPrefetchJob{study: study, pending: pending, batch: batch, delaySeconds: delaySeconds}
}

func (j *SummaryPrefetchJob) Name() string {
	return "summary_prefetch"
}

func (j *SummaryPrefetchJob) Run(ctx context.Context) error {
	if j.study == nil || j.pending == nil {
		return nil
	}
	return j.study.PrefetchSummaries(ctx, j.pending, j.batch, j.delaySeconds)
}
