package providers

import (
	"context"
	"fmt"
	"net/http"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
	anthropicModel      = "claude-sonnet-4-5-20250929"
)

// Anthropic implements Provider for the Messages API. A shared context is
// sent as its own system block marked for ephemeral prompt caching.
type Anthropic struct {
	apiKey   string
	settings Settings
	url      string
	client   *http.Client
}

// NewAnthropic creates a new Anthropic provider.
func NewAnthropic(s Settings) (*Anthropic, error) {
	key, err := apiKey(s, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	url := s.Endpoint
	if url == "" {
		url = anthropicAPIURL
	}
	return &Anthropic{apiKey: key, settings: s, url: url, client: s.client()}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	body := anthropicRequest{
		Model:       a.settings.model(req.Tier, anthropicModel),
		MaxTokens:   a.settings.maxTokens(req),
		Temperature: a.settings.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.UserPrompt},
		},
	}
	if req.SharedContext != "" {
		body.System = []anthropicBlock{
			{Type: "text", Text: req.SharedContext, CacheControl: &anthropicCache{Type: "ephemeral"}},
			{Type: "text", Text: req.SystemPrompt},
		}
	} else {
		body.System = req.SystemPrompt
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
	var result anthropicResponse
	if err := postJSON(ctx, a.client, a.url, headers, body, &result); err != nil {
		return Response{}, err
	}

	for _, block := range result.Content {
		if block.Type == "text" {
			return Response{
				Content: block.Text,
				Usage: &Usage{
					Input:      result.Usage.InputTokens,
					Output:     result.Usage.OutputTokens,
					CacheRead:  result.Usage.CacheReadInputTokens,
					CacheWrite: result.Usage.CacheCreationInputTokens,
				},
			}, nil
		}
	}
	return Response{}, fmt.Errorf("empty text content in API response")
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      any                `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl *anthropicCache `json:"cache_control,omitempty"`
}

type anthropicCache struct {
	Type string `json:"type"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}
