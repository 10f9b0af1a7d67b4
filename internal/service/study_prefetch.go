package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mstudy/internal/localgen"
	"github.com/xxxsen/mstudy/internal/model"
	"github.com/xxxsen/mstudy/internal/pkg/timeutil"
	"github.com/xxxsen/mstudy/internal/text"
)

const defaultPrefetchBatch = 20

// PendingLister lists documents modified after their newest summary artifact.
type PendingLister interface {
	ListPendingSummaries(ctx context.Context, limit int, maxMtime int64) ([]model.Document, error)
}

// PrefetchSummaries summarizes pending documents through the provider chain. A
// local fallback result is not stored, so the document stays pending and the
// batch stops until the providers recover.
func (s *StudyService) PrefetchSummaries(ctx context.Context, pending PendingLister, batch int, delaySeconds int64) error {
	if pending == nil || s.chain == nil || s.artifacts == nil {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	if batch <= 0 {
		batch = defaultPrefetchBatch
	}
	if delaySeconds < 0 {
		delaySeconds = 0
	}
	cutoff := timeutil.NowUnix() - delaySeconds
	docs, err := pending.ListPendingSummaries(ctx, batch, cutoff)
	if err != nil {
		logger.Error("failed to list pending summaries", zap.Error(err))
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	logger.Info("prefetching summaries", zap.Int("count", len(docs)))
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		content := text.Sanitize(text.DocumentText(doc.Content, doc.Format))
		if content == "" {
			// mark it done so it does not block the batch
			s.persistText(ctx, doc.UserID, doc.ID, model.KindSummary, "", &TextResult{
				Text:   localgen.NotEnoughTextMessage,
				Source: model.SourceLocal,
			})
			continue
		}
		res, err := s.summarizeDocument(ctx, doc.UserID, doc.ID, content, Options{}, true)
		if err != nil {
			return err
		}
		if res.Fallback {
			logger.Warn("providers unavailable, prefetch paused", zap.String("file_id", doc.ID))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}
