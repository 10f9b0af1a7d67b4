package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Pruner deletes rows created before cutoff and reports how many went.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

type ArtifactCleanupJob struct {
	pruners    []Pruner
	maxAgeDays int
	now        func() time.Time
}

func NewArtifactCleanupJob(maxAgeDays int, pruners ...Pruner) *ArtifactCleanupJob {
	return &ArtifactCleanupJob{pruners: pruners, maxAgeDays: maxAgeDays, now: time.Now}
}

func (j *ArtifactCleanupJob) Name() string {
	return "artifact_cleanup"
}

func (j *ArtifactCleanupJob) Run(ctx context.Context) error {
	if len(j.pruners) == 0 {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	cutoff := j.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	var total int64
	for _, p := range j.pruners {
		if p == nil {
			continue
		}
		n, err := p.DeleteBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		total += n
	}
	logutil.GetLogger(ctx).Info("pruned old artifacts", zap.Int64("rows", total), zap.Int64("cutoff", cutoff))
	return nil
}
