package review

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/conclave/internal/cache"
	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/providers"
)

// ProviderFactory builds the provider a run talks to.
type ProviderFactory func(cfg *config.Config, projectPath string, log *zap.SugaredLogger) (providers.Provider, error)

// ProviderSettings maps the configured provider section onto backend settings.
func ProviderSettings(cfg *config.Config) providers.Settings {
	sec := cfg.ProviderSection()
	return providers.Settings{
		Model:          sec.Model,
		LiteModel:      sec.LiteModel,
		Deployment:     sec.Deployment,
		LiteDeployment: sec.LiteDeployment,
		Endpoint:       sec.Endpoint,
		APIVersion:     sec.APIVersion,
		APIKeyEnv:      sec.APIKeyEnv,
		MaxTokens:      sec.MaxTokens,
		Temperature:    cfg.AI.Temperature,
		Timeout:        time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	}
}

// NewProvider builds the configured backend wrapped with retries and, when
// ai.cache.enabled is set, the on-disk response cache.
func NewProvider(cfg *config.Config, projectPath string, log *zap.SugaredLogger) (providers.Provider, error) {
	s := ProviderSettings(cfg)
	backend, err := providers.New(cfg.AI.Provider, s)
	if err != nil {
		return nil, err
	}
	client := providers.NewClient(backend, cfg.AI.RetryAttempts,
		time.Duration(cfg.AI.RetryDelaySeconds)*time.Second, log)

	if !cfg.AI.Cache.Enabled {
		return client, nil
	}
	store, err := cache.New(true, config.CacheDir(projectPath), cfg.AI.Cache.TTLHours*3600)
	if err != nil {
		return nil, fmt.Errorf("opening response cache: %w", err)
	}
	model := s.Model
	if model == "" {
		model = s.Deployment
	}
	return providers.WithCache(client, store, model), nil
}
