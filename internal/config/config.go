package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DirName is the per-project state directory.
const DirName = ".conclave"

// ErrInvalidConfig is returned when config.yaml cannot be parsed.
var ErrInvalidConfig = errors.New("invalid project config")

// Config is the effective configuration for one project.
type Config struct {
	ConclaveVersion string          `yaml:"conclave_version,omitempty"`
	Project         ProjectConfig   `yaml:"project"`
	Standards       StandardsConfig `yaml:"standards"`
	Agents          AgentsConfig    `yaml:"agents"`
	Output          OutputConfig    `yaml:"output"`
	CI              CIConfig        `yaml:"ci"`
	AI              AIConfig        `yaml:"ai"`
	Scanner         ScannerConfig   `yaml:"scanner"`
	Privacy         PrivacyConfig   `yaml:"privacy"`
	Logging         LoggingConfig   `yaml:"logging"`
	Metrics         MetricsConfig   `yaml:"metrics"`
}

type ProjectConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Industry string `yaml:"industry"`
}

// StandardsConfig selects the compliance standards a review maps against.
type StandardsConfig struct {
	Required  []string           `yaml:"required"`
	Default   []string           `yaml:"default"`
	Available []string           `yaml:"available"`
	Profiles  map[string]Profile `yaml:"profiles"`
	Dir       string             `yaml:"dir,omitempty"`
}

// Profile is a named set of standards.
type Profile struct {
	Description string   `yaml:"description,omitempty"`
	Standards   []string `yaml:"standards"`
}

// AgentsConfig holds run-wide agent settings plus one section per agent key.
type AgentsConfig struct {
	Timeout  int                    `yaml:"timeout"`
	Parallel bool                   `yaml:"parallel"`
	Agents   map[string]AgentConfig `yaml:",inline"`
}

type AgentConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Tier             string `yaml:"tier"`
	CoverageTarget   int    `yaml:"coverage_target,omitempty"`
	ScanDependencies bool   `yaml:"scan_dependencies,omitempty"`
}

type OutputConfig struct {
	Format             string   `yaml:"format"`
	IncludeEvidence    bool     `yaml:"include_evidence"`
	IncludeRemediation bool     `yaml:"include_remediation"`
	JUnitFailOn        []string `yaml:"junit_fail_on"`
}

type CIConfig struct {
	ExitCodes ExitCodes `yaml:"exit_codes"`
}

type ExitCodes struct {
	Ship        int `yaml:"ship"`
	Conditional int `yaml:"conditional"`
	Hold        int `yaml:"hold"`
}

// AIConfig selects the provider and holds one section per backend.
type AIConfig struct {
	Provider          string         `yaml:"provider"`
	Temperature       float64        `yaml:"temperature"`
	TimeoutSeconds    int            `yaml:"timeout_seconds"`
	RetryAttempts     int            `yaml:"retry_attempts"`
	RetryDelaySeconds int            `yaml:"retry_delay_seconds"`
	MaxContextKB      int            `yaml:"max_context_kb"`
	Anthropic         ProviderConfig `yaml:"anthropic"`
	AzureOpenAI       ProviderConfig `yaml:"azure-openai"`
	OpenAI            ProviderConfig `yaml:"openai"`
	Ollama            ProviderConfig `yaml:"ollama"`
	Cache             CacheConfig    `yaml:"cache"`
}

// ProviderConfig is one backend's section under ai.
type ProviderConfig struct {
	Model          string `yaml:"model,omitempty"`
	LiteModel      string `yaml:"lite_model,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	Deployment     string `yaml:"deployment,omitempty"`
	LiteDeployment string `yaml:"lite_deployment,omitempty"`
	APIVersion     string `yaml:"api_version,omitempty"`
	APIKeyEnv      string `yaml:"api_key_env,omitempty"`
	MaxTokens      int    `yaml:"max_tokens,omitempty"`
}

// CacheConfig controls the provider response cache.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	TTLHours int  `yaml:"ttl_hours"`
}

type ScannerConfig struct {
	MaxFiles     int `yaml:"max_files"`
	MinFileBytes int `yaml:"min_file_bytes"`
	MaxFileKB    int `yaml:"max_file_kb"`
	MaxDiffKB    int `yaml:"max_diff_kb"`
	MaxContentKB int `yaml:"max_content_kb"`
}

// PrivacyConfig controls what is scrubbed before content leaves the machine.
type PrivacyConfig struct {
	RedactSecrets bool     `yaml:"redact_secrets"`
	RedactPaths   []string `yaml:"redact_paths,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AgentKeys is the canonical agent order.
var AgentKeys = []string{"guardian", "sentinel", "architect", "navigator", "herald", "operator"}

// Default returns the built-in configuration.
func Default() Config {
	agents := make(map[string]AgentConfig, len(AgentKeys))
	for _, key := range AgentKeys {
		agents[key] = AgentConfig{Enabled: true, Tier: "primary"}
	}
	sentinel := agents["sentinel"]
	sentinel.CoverageTarget = 80
	agents["sentinel"] = sentinel
	guardian := agents["guardian"]
	guardian.ScanDependencies = true
	agents["guardian"] = guardian

	return Config{
		Project: ProjectConfig{Version: "1.0.0", Industry: "general"},
		Standards: StandardsConfig{
			Required:  []string{},
			Default:   []string{},
			Available: []string{},
			Profiles:  map[string]Profile{},
		},
		Agents: AgentsConfig{Timeout: 40, Agents: agents},
		Output: OutputConfig{
			Format:             "markdown",
			IncludeEvidence:    true,
			IncludeRemediation: true,
			JUnitFailOn:        []string{"BLOCKER", "HIGH"},
		},
		CI: CIConfig{ExitCodes: ExitCodes{Ship: 0, Conditional: 2, Hold: 1}},
		AI: AIConfig{
			Provider:          "anthropic",
			Temperature:       0.3,
			TimeoutSeconds:    300,
			RetryAttempts:     3,
			RetryDelaySeconds: 5,
			MaxContextKB:      100,
			Anthropic: ProviderConfig{
				Model:     "claude-sonnet-4-5-20250929",
				LiteModel: "claude-haiku-4-5-20251001",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				MaxTokens: 16000,
			},
			AzureOpenAI: ProviderConfig{
				Deployment: "gpt-4o",
				APIVersion: "2024-10-01-preview",
				APIKeyEnv:  "AZURE_OPENAI_KEY",
				MaxTokens:  16000,
			},
			OpenAI: ProviderConfig{
				Model:     "gpt-4o",
				LiteModel: "gpt-4o-mini",
				APIKeyEnv: "OPENAI_API_KEY",
				MaxTokens: 16000,
			},
			Ollama: ProviderConfig{
				Endpoint:  "http://localhost:11434",
				Model:     "llama3.1:70b",
				MaxTokens: 8000,
			},
			Cache: CacheConfig{TTLHours: 24},
		},
		Scanner: ScannerConfig{
			MaxFiles:     75,
			MinFileBytes: 50,
			MaxFileKB:    50,
			MaxDiffKB:    100,
			MaxContentKB: 200,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		Logging: LoggingConfig{Level: "warn"},
	}
}

// Dir returns the state directory of the project at projectPath.
func Dir(projectPath string) string { return filepath.Join(projectPath, DirName) }

// Path returns the project's config.yaml.
func Path(projectPath string) string { return filepath.Join(Dir(projectPath), "config.yaml") }

// ReviewsDir returns where working findings and reports are written.
func ReviewsDir(projectPath string) string { return filepath.Join(Dir(projectPath), "reviews") }

// AgentsDir returns where project instruction overrides live.
func AgentsDir(projectPath string) string { return filepath.Join(Dir(projectPath), "agents") }

// CalibrationPath returns the project's calibration.yaml.
func CalibrationPath(projectPath string) string {
	return filepath.Join(Dir(projectPath), "calibration.yaml")
}

// CacheDir returns the provider response cache directory.
func CacheDir(projectPath string) string { return filepath.Join(Dir(projectPath), "cache") }

// StandardsDir resolves standards.dir against the project, defaulting to
// .conclave/standards.
func (c *Config) StandardsDir(projectPath string) string {
	dir := c.Standards.Dir
	if dir == "" {
		return filepath.Join(Dir(projectPath), "standards")
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectPath, dir)
}

// ProviderSection returns the ai section for the configured provider.
func (c *Config) ProviderSection() ProviderConfig {
	switch c.AI.Provider {
	case "azure-openai":
		return c.AI.AzureOpenAI
	case "openai":
		return c.AI.OpenAI
	case "ollama":
		return c.AI.Ollama
	default:
		return c.AI.Anthropic
	}
}

// Overrides holds values from CLI flags. Empty fields are not applied.
type Overrides struct {
	Provider string
	Model    string
	Endpoint string
	Format   string
	LogLevel string
	NoCache  bool
	Metrics  bool
}

// Load builds the effective config: defaults, then .conclave/config.yaml,
// then environment variables, then o. A missing file is not an error.
func Load(projectPath string, o Overrides) (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	file, err := readFile(Path(projectPath))
	if err != nil {
		return nil, err
	}
	merged = DeepMerge(merged, file)

	provider := stringAt(merged, "ai", "provider")
	merged = DeepMerge(merged, envLayer(provider))
	if o.Provider != "" {
		provider = o.Provider
	} else {
		provider = stringAt(merged, "ai", "provider")
	}
	merged = DeepMerge(merged, o.layer(provider))

	return fromMap(merged)
}

// DeepMerge returns base with override applied. Nested maps merge key by
// key; any other value, including a list, replaces the base value. Neither
// argument is modified.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		bm, bok := out[k].(map[string]any)
		om, ook := v.(map[string]any)
		if bok && ook {
			out[k] = DeepMerge(bm, om)
			continue
		}
		out[k] = v
	}
	return out
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data = bytes.ReplaceAll(data, []byte("\xef\xbb\xbf"), nil)

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// modelKey is the per-provider key a model override targets.
func modelKey(provider string) string {
	if provider == "azure-openai" {
		return "deployment"
	}
	return "model"
}

func envLayer(provider string) map[string]any {
	ai := map[string]any{}
	if v := os.Getenv("CONCLAVE_AI_PROVIDER"); v != "" {
		ai["provider"] = v
		provider = v
	}
	if v := os.Getenv("CONCLAVE_AI_MODEL"); v != "" {
		ai[provider] = map[string]any{modelKey(provider): v}
	}

	logging := map[string]any{}
	if v := os.Getenv("CONCLAVE_LOG_LEVEL"); v != "" {
		logging["level"] = v
	}
	if v := os.Getenv("CONCLAVE_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			logging["json"] = b
		}
	}

	layer := map[string]any{}
	if len(ai) > 0 {
		layer["ai"] = ai
	}
	if len(logging) > 0 {
		layer["logging"] = logging
	}
	return layer
}

func (o Overrides) layer(provider string) map[string]any {
	layer := map[string]any{}
	ai := map[string]any{}
	if o.Provider != "" {
		ai["provider"] = o.Provider
	}
	section := map[string]any{}
	if o.Model != "" {
		section[modelKey(provider)] = o.Model
	}
	if o.Endpoint != "" {
		section["endpoint"] = o.Endpoint
	}
	if len(section) > 0 {
		ai[provider] = section
	}
	if o.NoCache {
		ai["cache"] = map[string]any{"enabled": false}
	}
	if len(ai) > 0 {
		layer["ai"] = ai
	}
	if o.Format != "" {
		layer["output"] = map[string]any{"format": o.Format}
	}
	if o.LogLevel != "" {
		layer["logging"] = map[string]any{"level": o.LogLevel}
	}
	if o.Metrics {
		layer["metrics"] = map[string]any{"enabled": true}
	}
	return layer
}

func stringAt(m map[string]any, keys ...string) string {
	var cur any = m
	for _, k := range keys {
		next, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = next[k]
	}
	s, _ := cur.(string)
	return s
}

func toMap(c Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &c, nil
}

// YAML renders the effective config.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// AgentEnabled reports whether key is enabled. Unknown keys are enabled.
func (c *Config) AgentEnabled(key string) bool {
	a, ok := c.Agents.Agents[key]
	return !ok || a.Enabled
}

// EffectiveStandards resolves which standards apply to a run. Required
// standards come first, then the named profile's standards (or the defaults
// minus skip when no profile applies), then add. Duplicates and blanks are
// dropped, keeping first occurrence.
func (c *Config) EffectiveStandards(profile string, add, skip []string) []string {
	s := c.Standards
	skipped := make(map[string]bool, len(skip))
	for _, k := range skip {
		skipped[k] = true
	}

	effective := append([]string{}, s.Required...)
	if profile != "" && profile != "default" && len(s.Profiles) > 0 {
		if p, ok := s.Profiles[profile]; ok {
			effective = append(effective, p.Standards...)
		}
	} else {
		for _, std := range s.Default {
			if !skipped[std] {
				effective = append(effective, std)
			}
		}
	}
	effective = append(effective, add...)

	seen := make(map[string]bool, len(effective))
	out := []string{}
	for _, std := range effective {
		std = strings.TrimSpace(std)
		if std == "" || seen[std] {
			continue
		}
		seen[std] = true
		out = append(out, std)
	}
	return out
}
