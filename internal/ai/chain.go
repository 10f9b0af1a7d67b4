package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ErrAllProvidersExhausted means every configured provider failed recoverably.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	}
	return "unknown"
}

type ChainEntry struct {
	Name      string
	Provider  IProvider
	Timeout   time.Duration
	MaxTokens int
}

type Attempt struct {
	Provider string
	Err      error
	Elapsed  time.Duration
}

// Result is the tagged outcome of one chain run. Text and Provider are set only
// for OutcomeSuccess.
type Result struct {
	Outcome  Outcome
	Text     string
	Provider string
	Attempts []Attempt
}

// ChainAbortError is returned when a provider fails in a way that must not be
// papered over by trying the next one.
type ChainAbortError struct {
	Provider string
	Err      error
}

func (e *ChainAbortError) Error() string {
	return fmt.Sprintf("provider chain aborted at %s: %v", e.Provider, e.Err)
}

func (e *ChainAbortError) Unwrap() error {
	return e.Err
}

// Chain tries providers in their configured order on every call. It keeps no
// state between calls and never falls back to local generation itself.
type Chain struct {
	entries []ChainEntry
}

func NewChain(entries []ChainEntry) *Chain {
	items := make([]ChainEntry, 0, len(entries))
	for _, e := range entries {
		if e.Provider == nil {
			continue
		}
		if e.Name == "" {
			e.Name = e.Provider.Name()
		}
		items = append(items, e)
	}
	return &Chain{entries: items}
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.Name)
	}
	return names
}

func (c *Chain) Run(ctx context.Context, prompt, system string) (*Result, error) {
	return c.RunWith(ctx, prompt, system, nil)
}

// RunWith is Run with an acceptance check on the provider text. A rejected text
// counts as a malformed response and advances the chain.
//
// The returned error is non-nil only when the chain stopped early: the caller's
// context ended (ctx.Err()) or a provider failed unrecoverably (*ChainAbortError).
func (c *Chain) RunWith(ctx context.Context, prompt, system string, accept func(string) error) (*Result, error) {
	res := &Result{Outcome: OutcomeExhausted}
	if c == nil {
		return res, nil
	}
	logger := logutil.GetLogger(ctx)
	for i, entry := range c.entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		text, err := c.call(ctx, entry, prompt, system)
		if err == nil && accept != nil {
			if aerr := accept(text); aerr != nil {
				err = newProviderError(entry.Name, KindMalformed, aerr)
			}
		}
		elapsed := time.Since(start)
		if err == nil {
			if i > 0 {
				logger.Info("used fallback provider", zap.Int("index", i), zap.String("name", entry.Name))
			}
			res.Outcome = OutcomeSuccess
			res.Text = text
			res.Provider = entry.Name
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.Attempts = append(res.Attempts, Attempt{Provider: entry.Name, Err: err, Elapsed: elapsed})
		if !IsRecoverable(err) {
			logger.Error("provider failed, aborting chain", zap.Int("index", i), zap.String("name", entry.Name), zap.Error(err))
			return res, &ChainAbortError{Provider: entry.Name, Err: err}
		}
		logger.Warn("provider failed", zap.Int("index", i), zap.String("name", entry.Name),
			zap.Duration("elapsed", elapsed), zap.Error(err))
	}
	return res, nil
}

func (c *Chain) call(ctx context.Context, entry ChainEntry, prompt, system string) (string, error) {
	callCtx := ctx
	if entry.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, entry.Timeout)
		defer cancel()
	}
	text, err := entry.Provider.Generate(callCtx, GenerateRequest{
		Prompt:    prompt,
		System:    system,
		MaxTokens: entry.MaxTokens,
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			if pe, ok := AsProviderError(err); !ok || pe.Kind != KindTimeout {
				err = newProviderError(entry.Name, KindTimeout, err)
			}
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", newProviderError(entry.Name, KindEmptyResponse, nil)
	}
	return text, nil
}

// Generate runs the chain and flattens the tagged result into (text, error),
// reporting exhaustion as ErrAllProvidersExhausted.
func (c *Chain) Generate(ctx context.Context, prompt string) (string, error) {
	res, err := c.Run(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	if res.Outcome != OutcomeSuccess {
		return "", ErrAllProvidersExhausted
	}
	return res.Text, nil
}

type ProviderSpec struct {
	Name      string
	Type      string
	Timeout   time.Duration
	MaxTokens int
	Data      interface{}
}

// BuildChain creates one provider per spec, keeping the spec order.
func BuildChain(specs []ProviderSpec) (*Chain, error) {
	entries := make([]ChainEntry, 0, len(specs))
	for i, spec := range specs {
		provider, err := NewProvider(spec.Type, spec.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider #%d (%s): %w", i, spec.Name, err)
		}
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			name = provider.Name()
		}
		entries = append(entries, ChainEntry{
			Name:      name,
			Provider:  provider,
			Timeout:   spec.Timeout,
			MaxTokens: spec.MaxTokens,
		})
	}
	return NewChain(entries), nil
}
