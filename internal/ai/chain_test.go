package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	calls *[]string
	fn    func(ctx context.Context, req GenerateRequest) (string, error)
}

func (f *fakeProvider) Name() string {
	return f.name
}

func (f *fakeProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	return f.fn(ctx, req)
}

func replying(name string, calls *[]string, text string) *fakeProvider {
	return &fakeProvider{name: name, calls: calls, fn: func(context.Context, GenerateRequest) (string, error) {
		return text, nil
	}}
}

func failing(name string, calls *[]string, err error) *fakeProvider {
	return &fakeProvider{name: name, calls: calls, fn: func(context.Context, GenerateRequest) (string, error) {
		return "", err
	}}
}

func entries(providers ...IProvider) []ChainEntry {
	out := make([]ChainEntry, 0, len(providers))
	for _, p := range providers {
		out = append(out, ChainEntry{Provider: p})
	}
	return out
}

func TestChainRun_AllUnavailableIsExhausted(t *testing.T) {
	var calls []string
	chain := NewChain(entries(
		failing("a", &calls, httpError("a", http.StatusServiceUnavailable, "")),
		failing("b", &calls, httpError("b", http.StatusServiceUnavailable, "")),
		failing("c", &calls, httpError("c", http.StatusServiceUnavailable, "")),
	))
	res, err := chain.Run(context.Background(), "prompt", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeExhausted, res.Outcome)
	require.Empty(t, res.Text)
	require.Equal(t, []string{"a", "b", "c"}, calls)
	require.Len(t, res.Attempts, 3)
	require.Equal(t, "c", res.Attempts[2].Provider)
}

func TestChainRun_FallsThroughToFirstSuccess(t *testing.T) {
	var calls []string
	chain := NewChain(entries(
		failing("a", &calls, missingCredential("a")),
		failing("b", &calls, httpError("b", http.StatusTooManyRequests, "slow down")),
		replying("c", &calls, "done"),
		replying("d", &calls, "unused"),
	))
	res, err := chain.Run(context.Background(), "prompt", "sys")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, "done", res.Text)
	require.Equal(t, "c", res.Provider)
	require.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestChainRun_StopsOnUnrecoverableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "bad request", err: httpError("a", http.StatusBadRequest, "bad")},
		{name: "not found", err: httpError("a", http.StatusNotFound, "")},
		{name: "plain error", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			chain := NewChain(entries(
				failing("a", &calls, tt.err),
				replying("b", &calls, "never"),
			))
			res, err := chain.Run(context.Background(), "prompt", "")
			var abort *ChainAbortError
			require.ErrorAs(t, err, &abort)
			require.Equal(t, "a", abort.Provider)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, OutcomeExhausted, res.Outcome)
			require.Equal(t, []string{"a"}, calls)
		})
	}
}

func TestChainRun_PerCallTimeoutAdvances(t *testing.T) {
	var calls []string
	slow := &fakeProvider{name: "slow", calls: &calls, fn: func(ctx context.Context, _ GenerateRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	chain := NewChain([]ChainEntry{
		{Provider: slow, Timeout: 20 * time.Millisecond},
		{Provider: replying("fast", &calls, "ok")},
	})
	res, err := chain.Run(context.Background(), "prompt", "")
	require.NoError(t, err)
	require.Equal(t, "fast", res.Provider)
	require.Len(t, res.Attempts, 1)
	pe, ok := AsProviderError(res.Attempts[0].Err)
	require.True(t, ok)
	require.Equal(t, KindTimeout, pe.Kind)
}

func TestChainRun_CancelledContextStopsChain(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &fakeProvider{name: "a", calls: &calls, fn: func(ctx context.Context, _ GenerateRequest) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	chain := NewChain(entries(first, replying("b", &calls, "never")))
	_, err := chain.Run(ctx, "prompt", "")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"a"}, calls)

	calls = nil
	_, err = chain.Run(ctx, "prompt", "")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, calls)
}

func TestChainRunWith_RejectedTextAdvances(t *testing.T) {
	var calls []string
	chain := NewChain(entries(
		replying("a", &calls, "not json"),
		replying("b", &calls, "   "),
		replying("c", &calls, `[{"front":"x","back":"y"}]`),
	))
	accept := func(text string) error {
		if text[0] != '[' {
			return errors.New("no array")
		}
		return nil
	}
	res, err := chain.RunWith(context.Background(), "prompt", "", accept)
	require.NoError(t, err)
	require.Equal(t, "c", res.Provider)
	require.Len(t, res.Attempts, 2)
	pe, _ := AsProviderError(res.Attempts[0].Err)
	require.Equal(t, KindMalformed, pe.Kind)
	pe, _ = AsProviderError(res.Attempts[1].Err)
	require.Equal(t, KindEmptyResponse, pe.Kind)
}

func TestChainRun_PassesRequestFields(t *testing.T) {
	var got GenerateRequest
	p := &fakeProvider{name: "a", fn: func(_ context.Context, req GenerateRequest) (string, error) {
		got = req
		return "ok", nil
	}}
	chain := NewChain([]ChainEntry{{Name: "primary", Provider: p, MaxTokens: 321}})
	res, err := chain.Run(context.Background(), "the prompt", "the system")
	require.NoError(t, err)
	require.Equal(t, "primary", res.Provider)
	require.Equal(t, GenerateRequest{Prompt: "the prompt", System: "the system", MaxTokens: 321}, got)
	require.Equal(t, []string{"primary"}, chain.Names())
}

func TestChainGenerate(t *testing.T) {
	chain := NewChain(entries(failing("a", nil, httpError("a", http.StatusBadGateway, ""))))
	_, err := chain.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, ErrAllProvidersExhausted)

	var empty *Chain
	require.Equal(t, 0, empty.Len())
	res, err := empty.Run(context.Background(), "prompt", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeExhausted, res.Outcome)

	chain = NewChain(entries(replying("a", nil, "hello")))
	text, err := chain.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestBuildChain(t *testing.T) {
	chain, err := BuildChain([]ProviderSpec{
		{Name: "primary", Type: "openai", Data: map[string]interface{}{"api_key": ""}},
		{Type: "anthropic", Data: map[string]interface{}{}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"primary", "anthropic"}, chain.Names())

	res, err := chain.Run(context.Background(), "prompt", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeExhausted, res.Outcome)
	for _, a := range res.Attempts {
		require.ErrorIs(t, a.Err, ErrMissingCredential)
	}

	_, err = BuildChain([]ProviderSpec{{Type: "unknown", Data: map[string]interface{}{}}})
	require.Error(t, err)
}

func TestProviderErrorRecoverable(t *testing.T) {
	for _, status := range []int{401, 402, 403, 408, 409, 412, 429, 500, 502, 503, 504} {
		require.True(t, httpError("x", status, "").Recoverable(), "status %d", status)
	}
	for _, status := range []int{400, 404, 405, 413, 422} {
		require.False(t, httpError("x", status, "").Recoverable(), "status %d", status)
	}
	require.True(t, newProviderError("x", KindTransport, nil).Recoverable())
	require.False(t, IsRecoverable(errors.New("plain")))
	require.False(t, IsRecoverable(nil))
}
