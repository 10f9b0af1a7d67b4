package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

type GenerateRequest struct {
	Prompt    string
	System    string
	MaxTokens int
}

// IProvider is one remote completion vendor. Implementations return
// *ProviderError for every failure they can classify and never retry on their own
// beyond trying alternate model names.
type IProvider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type ProviderFactory func(args interface{}) (IProvider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai provider type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

// modelList puts the primary model first, followed by the distinct alternates.
func modelList(primary string, alternates []string, fallback string) []string {
	models := make([]string, 0, 1+len(alternates))
	seen := make(map[string]bool)
	for _, m := range append([]string{primary}, alternates...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}
	if len(models) == 0 && fallback != "" {
		models = append(models, fallback)
	}
	return models
}
