// Package respcache keeps accepted provider replies in the database so an
// identical prompt is answered without another provider call.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mstudy/internal/ai"
	"github.com/xxxsen/mstudy/internal/model"
)

type Generator interface {
	RunWith(ctx context.Context, prompt, system string, accept func(string) error) (*ai.Result, error)
}

type Store interface {
	Get(ctx context.Context, promptHash string, minCtime int64) (*model.ProviderResponse, bool, error)
	Save(ctx context.Context, item *model.ProviderResponse) error
}

// WrapDBCacheToGenerator returns next unchanged when store is nil or ttl is not
// positive.
func WrapDBCacheToGenerator(next Generator, store Store, ttl time.Duration) Generator {
	if next == nil || store == nil || ttl <= 0 {
		return next
	}
	return &dbGenerator{next: next, store: store, ttl: ttl, now: time.Now}
}

type dbGenerator struct {
	next  Generator
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func (d *dbGenerator) RunWith(ctx context.Context, prompt, system string, accept func(string) error) (*ai.Result, error) {
	logger := logutil.GetLogger(ctx)
	hash := buildCacheKey(system, prompt)
	minCtime := d.now().Add(-d.ttl).Unix()
	item, ok, err := d.store.Get(ctx, hash, minCtime)
	if err != nil {
		logger.Warn("provider response cache lookup failed", zap.Error(err))
	}
	if ok && (accept == nil || accept(item.Text) == nil) {
		logger.Debug("provider response cache hit", zap.String("provider", item.Provider))
		return &ai.Result{Outcome: ai.OutcomeSuccess, Text: item.Text, Provider: item.Provider}, nil
	}
	res, err := d.next.RunWith(ctx, prompt, system, accept)
	if err != nil || res == nil || res.Outcome != ai.OutcomeSuccess {
		return res, err
	}
	if err := d.store.Save(ctx, &model.ProviderResponse{
		PromptHash: hash,
		Provider:   res.Provider,
		Text:       res.Text,
		Ctime:      d.now().Unix(),
	}); err != nil {
		logger.Warn("failed to cache provider response", zap.Error(err))
	}
	return res, nil
}

func buildCacheKey(system, prompt string) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}
