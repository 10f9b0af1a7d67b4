package respcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mstudy/internal/ai"
	"github.com/xxxsen/mstudy/internal/model"
)

type memoryStore struct {
	items   map[string]model.ProviderResponse
	getErr  error
	saveErr error
}

func (m *memoryStore) Get(ctx context.Context, promptHash string, minCtime int64) (*model.ProviderResponse, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	item, ok := m.items[promptHash]
	if !ok || item.Ctime < minCtime {
		return nil, false, nil
	}
	return &item, true, nil
}

func (m *memoryStore) Save(ctx context.Context, item *model.ProviderResponse) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.items[item.PromptHash] = *item
	return nil
}

type countingGenerator struct {
	calls int
	res   *ai.Result
	err   error
}

func (g *countingGenerator) RunWith(ctx context.Context, prompt, system string, accept func(string) error) (*ai.Result, error) {
	g.calls++
	return g.res, g.err
}

func TestWrapDBCacheToGenerator_Passthrough(t *testing.T) {
	next := &countingGenerator{}
	require.Equal(t, Generator(next), WrapDBCacheToGenerator(next, nil, time.Hour))
	require.Equal(t, Generator(next), WrapDBCacheToGenerator(next, &memoryStore{}, 0))
	require.Nil(t, WrapDBCacheToGenerator(nil, &memoryStore{}, time.Hour))
}

func TestDBGenerator_CachesSuccess(t *testing.T) {
	store := &memoryStore{items: map[string]model.ProviderResponse{}}
	next := &countingGenerator{res: &ai.Result{Outcome: ai.OutcomeSuccess, Text: "summary", Provider: "p1"}}
	gen := WrapDBCacheToGenerator(next, store, time.Hour)

	res, err := gen.RunWith(context.Background(), "prompt", "system", nil)
	require.NoError(t, err)
	require.Equal(t, "summary", res.Text)
	res, err = gen.RunWith(context.Background(), "prompt", "system", nil)
	require.NoError(t, err)
	require.Equal(t, "p1", res.Provider)
	require.Equal(t, 1, next.calls)

	// different system prompt is a different key
	_, err = gen.RunWith(context.Background(), "prompt", "other", nil)
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
}

func TestDBGenerator_SkipsRejectedAndExpired(t *testing.T) {
	store := &memoryStore{items: map[string]model.ProviderResponse{}}
	next := &countingGenerator{res: &ai.Result{Outcome: ai.OutcomeSuccess, Text: "[]", Provider: "p1"}}
	gen := WrapDBCacheToGenerator(next, store, time.Hour).(*dbGenerator)

	_, err := gen.RunWith(context.Background(), "exam", "", nil)
	require.NoError(t, err)
	reject := func(string) error { return errors.New("no questions") }
	_, err = gen.RunWith(context.Background(), "exam", "", reject)
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)

	gen.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = gen.RunWith(context.Background(), "exam", "", nil)
	require.NoError(t, err)
	require.Equal(t, 3, next.calls)
}

func TestDBGenerator_FailuresNotCached(t *testing.T) {
	store := &memoryStore{items: map[string]model.ProviderResponse{}}
	next := &countingGenerator{res: &ai.Result{Outcome: ai.OutcomeExhausted}}
	gen := WrapDBCacheToGenerator(next, store, time.Hour)
	res, err := gen.RunWith(context.Background(), "p", "", nil)
	require.NoError(t, err)
	require.Equal(t, ai.OutcomeExhausted, res.Outcome)
	require.Empty(t, store.items)

	next.res, next.err = &ai.Result{Outcome: ai.OutcomeExhausted}, context.Canceled
	_, err = gen.RunWith(context.Background(), "p", "", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, store.items)
}

func TestDBGenerator_StoreErrorsIgnored(t *testing.T) {
	store := &memoryStore{items: map[string]model.ProviderResponse{}, getErr: errors.New("db down"), saveErr: errors.New("db down")}
	next := &countingGenerator{res: &ai.Result{Outcome: ai.OutcomeSuccess, Text: "ok", Provider: "p1"}}
	gen := WrapDBCacheToGenerator(next, store, time.Hour)
	res, err := gen.RunWith(context.Background(), "p", "", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", res.Text)
}
