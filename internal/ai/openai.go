package ai

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

type openAIConfig struct {
	APIKey    string   `json:"api_key"`
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	AltModels []string `json:"alt_models"`
}

// chatCompletionsProvider talks to any OpenAI compatible /chat/completions API.
type chatCompletionsProvider struct {
	name    string
	apiKey  string
	baseURL string
	models  []string
	headers map[string]string
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *chatCompletionsProvider) Name() string {
	return p.name
}

// Generate tries the configured model first and moves on to the alternates
// only when the API answers with an HTTP error.
func (p *chatCompletionsProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if p.apiKey == "" {
		return "", missingCredential(p.name)
	}
	var lastErr error
	for _, model := range p.models {
		text, err := p.generateWithModel(ctx, model, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		pe, ok := AsProviderError(err)
		if !ok || pe.Kind != KindHTTP {
			return "", err
		}
	}
	return "", lastErr
}

func (p *chatCompletionsProvider) generateWithModel(ctx context.Context, model string, req GenerateRequest) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	for k, v := range p.headers {
		headers[k] = v
	}
	var out chatResponse
	endpoint := strings.TrimRight(p.baseURL, "/") + "/chat/completions"
	if err := postJSON(ctx, p.name, endpoint, headers, chatRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", newProviderError(p.name, KindEmptyResponse, errors.New("response has no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", newProviderError(p.name, KindEmptyResponse, errors.New("empty message content"))
	}
	return text, nil
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &chatCompletionsProvider{
		name:    "openai",
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		models:  modelList(cfg.Model, cfg.AltModels, defaultOpenAIModel),
	}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
}
