package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

var newGeminiClient = genai.NewClient

type geminiConfig struct {
	APIKey    string   `json:"api_key"`
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	AltModels []string `json:"alt_models"`
}

type geminiProvider struct {
	apiKey  string
	baseURL string
	models  []string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if p.apiKey == "" {
		return "", missingCredential(p.Name())
	}
	cc := &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := newGeminiClient(ctx, cc)
	if err != nil {
		return "", newProviderError(p.Name(), KindTransport, fmt.Errorf("init client: %w", err))
	}
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	var lastErr error
	for _, model := range p.models {
		resp, err := client.Models.GenerateContent(
			ctx,
			model,
			[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}},
			config,
		)
		if err != nil {
			lastErr = p.classify(ctx, err)
			if pe, ok := AsProviderError(lastErr); ok && pe.Kind == KindHTTP {
				continue
			}
			return "", lastErr
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", newProviderError(p.Name(), KindEmptyResponse, errors.New("no candidate text"))
		}
		return text, nil
	}
	return "", lastErr
}

func (p *geminiProvider) classify(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return httpError(p.Name(), apiErr.Code, apiErr.Message)
	}
	return classifyTransportError(ctx, p.Name(), err)
}

func createGeminiFactory(args interface{}) (IProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimSpace(cfg.BaseURL),
		models:  modelList(cfg.Model, cfg.AltModels, defaultGeminiModel),
	}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
