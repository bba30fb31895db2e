package providers

import (
	"context"
	"net/http"
	"os"
	"strings"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	ollamaModel      = "llama3.1:70b"
)

// Ollama implements Provider for a local Ollama server's generate API. No
// API key is required.
type Ollama struct {
	settings Settings
	url      string
	client   *http.Client
}

// NewOllama creates a new Ollama provider. The endpoint comes from
// Settings.Endpoint, then OLLAMA_HOST, then the local default.
func NewOllama(s Settings) (*Ollama, error) {
	baseURL := s.Endpoint
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/api/generate")

	return &Ollama{
		settings: s,
		url:      baseURL + "/api/generate",
		client:   s.client(),
	}, nil
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Complete(ctx context.Context, req Request) (Response, error) {
	body := ollamaRequest{
		Model:  o.settings.model(req.Tier, ollamaModel),
		System: mergeSystem(req),
		Prompt: req.UserPrompt,
		Stream: false,
	}
	var result ollamaResponse
	if err := postJSON(ctx, o.client, o.url, nil, body, &result); err != nil {
		return Response{}, err
	}
	resp := Response{Content: result.Response}
	if result.PromptEvalCount > 0 || result.EvalCount > 0 {
		resp.Usage = &Usage{Input: result.PromptEvalCount, Output: result.EvalCount}
	}
	return resp, nil
}

type ollamaRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
