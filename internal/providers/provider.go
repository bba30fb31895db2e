package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Tier selects between a provider's primary and lite model.
type Tier string

const (
	TierPrimary Tier = "primary"
	TierLite    Tier = "lite"
)

// Request is one completion call. SharedContext, when set, is the large
// project context reused by every agent; backends that support prompt
// caching mark it cacheable, the rest prepend it to the system prompt.
type Request struct {
	SharedContext string
	SystemPrompt  string
	UserPrompt    string
	Tier          Tier
	MaxTokens     int
}

// Inline returns r with SharedContext folded into SystemPrompt, for tiers
// that do not get prompt caching.
func (r Request) Inline() Request {
	r.SystemPrompt = mergeSystem(r)
	r.SharedContext = ""
	return r
}

// Usage is the token accounting of one call.
type Usage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cacheRead,omitempty"`
	CacheWrite int `json:"cacheWrite,omitempty"`
}

// Map returns usage keyed the way agent results record it.
func (u Usage) Map() map[string]int {
	return map[string]int{
		"input":      u.Input,
		"output":     u.Output,
		"cacheRead":  u.CacheRead,
		"cacheWrite": u.CacheWrite,
	}
}

// Response is the text an AI provider returned.
type Response struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Provider is the provider abstraction interface.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// Settings configures one backend. Zero values take per-provider defaults.
type Settings struct {
	Model          string
	LiteModel      string
	Deployment     string
	LiteDeployment string
	Endpoint       string
	APIVersion     string
	APIKeyEnv      string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration

	// HTTPClient replaces the default client built from Timeout.
	HTTPClient *http.Client
}

func (s Settings) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (s Settings) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if s.MaxTokens > 0 {
		return s.MaxTokens
	}
	return 16000
}

func (s Settings) model(tier Tier, fallback string) string {
	if tier == TierLite && s.LiteModel != "" {
		return s.LiteModel
	}
	if s.Model != "" {
		return s.Model
	}
	return fallback
}

// ErrUnknownProvider is returned by New for an unsupported name.
var ErrUnknownProvider = errors.New("unknown AI provider")

// ErrMissingCredentials is returned when a required API key or endpoint is
// not configured.
var ErrMissingCredentials = errors.New("missing provider credentials")

// Names lists the supported providers.
var Names = []string{"anthropic", "azure-openai", "openai", "ollama"}

// New creates a provider by name.
func New(name string, s Settings) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropic(s)
	case "azure-openai":
		return NewAzureOpenAI(s)
	case "openai":
		return NewOpenAI(s)
	case "ollama":
		return NewOllama(s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

func apiKey(s Settings, defaultEnv string) (string, error) {
	env := s.APIKeyEnv
	if env == "" {
		env = defaultEnv
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissingCredentials, env)
	}
	return key, nil
}

// mergeSystem folds the shared context into the system prompt for backends
// without prompt caching.
func mergeSystem(req Request) string {
	if req.SharedContext == "" {
		return req.SystemPrompt
	}
	return req.SharedContext + "\n\n" + req.SystemPrompt
}
