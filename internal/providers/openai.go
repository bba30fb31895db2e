package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOpenAIURL  = "https://api.openai.com/v1/chat/completions"
	openaiModel       = "gpt-4o"
	defaultAzureAPI   = "2024-10-01-preview"
	defaultDeployment = "gpt-4o"
)

// OpenAI implements Provider for OpenAI chat completions.
type OpenAI struct {
	apiKey   string
	settings Settings
	url      string
	client   *http.Client
}

// NewOpenAI creates a new OpenAI provider. Settings.Endpoint overrides the
// API URL for compatible gateways.
func NewOpenAI(s Settings) (*OpenAI, error) {
	key, err := apiKey(s, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	url := s.Endpoint
	if url == "" {
		url = defaultOpenAIURL
	}
	return &OpenAI{apiKey: key, settings: s, url: url, client: s.client()}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	body := chatRequest(req, o.settings)
	body.Model = o.settings.model(req.Tier, openaiModel)
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	return doChat(ctx, o.client, o.url, headers, body)
}

// AzureOpenAI implements Provider for Azure OpenAI deployments.
type AzureOpenAI struct {
	apiKey   string
	settings Settings
	client   *http.Client
}

// NewAzureOpenAI creates a provider for an Azure OpenAI resource. Both the
// key and the endpoint are required.
func NewAzureOpenAI(s Settings) (*AzureOpenAI, error) {
	key, err := apiKey(s, "AZURE_OPENAI_KEY")
	if err != nil {
		return nil, err
	}
	if s.Endpoint == "" {
		return nil, fmt.Errorf("%w: Azure OpenAI endpoint not configured", ErrMissingCredentials)
	}
	return &AzureOpenAI{apiKey: key, settings: s, client: s.client()}, nil
}

func (a *AzureOpenAI) Name() string { return "azure-openai" }

func (a *AzureOpenAI) deployment(tier Tier) string {
	if tier == TierLite && a.settings.LiteDeployment != "" {
		return a.settings.LiteDeployment
	}
	if a.settings.Deployment != "" {
		return a.settings.Deployment
	}
	return defaultDeployment
}

// URL returns the chat completions endpoint for tier.
func (a *AzureOpenAI) URL(tier Tier) string {
	version := a.settings.APIVersion
	if version == "" {
		version = defaultAzureAPI
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(a.settings.Endpoint, "/"), a.deployment(tier), version)
}

func (a *AzureOpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	headers := map[string]string{"api-key": a.apiKey}
	return doChat(ctx, a.client, a.URL(req.Tier), headers, chatRequest(req, a.settings))
}

func chatRequest(req Request, s Settings) openaiRequest {
	temp := s.Temperature
	return openaiRequest{
		Messages: []openaiMessage{
			{Role: "system", Content: mergeSystem(req)},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   s.maxTokens(req),
		Temperature: &temp,
	}
}

func doChat(ctx context.Context, client *http.Client, url string, headers map[string]string, body openaiRequest) (Response, error) {
	var result openaiResponse
	if err := postJSON(ctx, client, url, headers, body, &result); err != nil {
		return Response{}, err
	}
	if len(result.Choices) == 0 {
		return Response{}, fmt.Errorf("no choices in response")
	}
	if result.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("empty text content in API response")
	}
	return Response{
		Content: result.Choices[0].Message.Content,
		Usage: &Usage{
			Input:  result.Usage.PromptTokens,
			Output: result.Usage.CompletionTokens,
		},
	}, nil
}

type openaiRequest struct {
	Model       string          `json:"model,omitempty"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
