package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONCLAVE_AI_PROVIDER", "CONCLAVE_AI_MODEL", "CONCLAVE_LOG_LEVEL", "CONCLAVE_LOG_JSON"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(Dir(dir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(dir), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.AI.Provider != "anthropic" {
		t.Errorf("Default provider = %q, want %q", cfg.AI.Provider, "anthropic")
	}
	if cfg.AI.MaxContextKB != 100 {
		t.Errorf("Default max_context_kb = %d, want 100", cfg.AI.MaxContextKB)
	}
	if cfg.AI.RetryAttempts != 3 {
		t.Errorf("Default retry_attempts = %d, want 3", cfg.AI.RetryAttempts)
	}
	if cfg.Scanner.MaxFiles != 75 {
		t.Errorf("Default max_files = %d, want 75", cfg.Scanner.MaxFiles)
	}
	if !cfg.Privacy.RedactSecrets {
		t.Error("Default redact_secrets should be true")
	}
	if len(cfg.Agents.Agents) != 6 {
		t.Errorf("Default agents = %d, want 6", len(cfg.Agents.Agents))
	}
	if cfg.Agents.Agents["sentinel"].CoverageTarget != 80 {
		t.Errorf("sentinel coverage_target = %d, want 80", cfg.Agents.Agents["sentinel"].CoverageTarget)
	}
}

func TestDeepMerge(t *testing.T) {
	base := map[string]any{
		"ai": map[string]any{
			"provider":    "anthropic",
			"temperature": 0.3,
			"anthropic":   map[string]any{"model": "a", "max_tokens": 16000},
		},
		"standards": map[string]any{"default": []any{"x", "y"}},
	}
	override := map[string]any{
		"ai": map[string]any{
			"anthropic": map[string]any{"model": "b"},
		},
		"standards": map[string]any{"default": []any{"z"}},
		"extra":     1,
	}

	got := DeepMerge(base, override)

	ai := got["ai"].(map[string]any)
	if ai["provider"] != "anthropic" {
		t.Errorf("provider = %v, want anthropic", ai["provider"])
	}
	anth := ai["anthropic"].(map[string]any)
	if anth["model"] != "b" || anth["max_tokens"] != 16000 {
		t.Errorf("anthropic = %v, want model b with max_tokens kept", anth)
	}
	std := got["standards"].(map[string]any)["default"]
	if !reflect.DeepEqual(std, []any{"z"}) {
		t.Errorf("standards.default = %v, want [z] (lists replace)", std)
	}
	if got["extra"] != 1 {
		t.Errorf("extra = %v, want 1", got["extra"])
	}
	if base["ai"].(map[string]any)["anthropic"].(map[string]any)["model"] != "a" {
		t.Error("DeepMerge modified base")
	}
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir(), Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.AI.Anthropic != want.AI.Anthropic {
		t.Errorf("anthropic = %+v, want %+v", cfg.AI.Anthropic, want.AI.Anthropic)
	}
	if !cfg.AgentEnabled("herald") {
		t.Error("herald should be enabled by default")
	}
}

func TestLoad_ProjectFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "\ufeff# comment\n"+
		"project:\n  name: demo\n"+
		"agents:\n  herald:\n    enabled: false\n"+
		"ai:\n  provider: openai\n  openai:\n    model: gpt-4.1\n"+
		"standards:\n  default: [hipaa]\n")

	cfg, err := Load(dir, Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project.Name != "demo" {
		t.Errorf("project.name = %q, want demo", cfg.Project.Name)
	}
	if cfg.Project.Industry != "general" {
		t.Errorf("project.industry = %q, want default general", cfg.Project.Industry)
	}
	if cfg.AgentEnabled("herald") {
		t.Error("herald should be disabled")
	}
	if !cfg.AgentEnabled("guardian") {
		t.Error("guardian should stay enabled")
	}
	sec := cfg.ProviderSection()
	if sec.Model != "gpt-4.1" || sec.LiteModel != "gpt-4o-mini" {
		t.Errorf("openai section = %+v, want model gpt-4.1 with default lite model", sec)
	}
	if !reflect.DeepEqual(cfg.Standards.Default, []string{"hipaa"}) {
		t.Errorf("standards.default = %v, want [hipaa]", cfg.Standards.Default)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "ai: [unterminated\n")
	if _, err := Load(dir, Overrides{}); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvAndOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  level: info\n")

	t.Setenv("CONCLAVE_AI_PROVIDER", "azure-openai")
	t.Setenv("CONCLAVE_AI_MODEL", "my-deploy")
	t.Setenv("CONCLAVE_LOG_LEVEL", "error")
	t.Setenv("CONCLAVE_LOG_JSON", "true")

	cfg, err := Load(dir, Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "azure-openai" {
		t.Errorf("provider = %q, want azure-openai", cfg.AI.Provider)
	}
	if cfg.AI.AzureOpenAI.Deployment != "my-deploy" {
		t.Errorf("deployment = %q, want my-deploy", cfg.AI.AzureOpenAI.Deployment)
	}
	if cfg.Logging.Level != "error" || !cfg.Logging.JSON {
		t.Errorf("logging = %+v, want error/json", cfg.Logging)
	}

	cfg, err = Load(dir, Overrides{Provider: "ollama", Model: "qwen", LogLevel: "debug", NoCache: true, Format: "junit"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "ollama" || cfg.AI.Ollama.Model != "qwen" {
		t.Errorf("ai = %q/%q, want ollama/qwen", cfg.AI.Provider, cfg.AI.Ollama.Model)
	}
	if cfg.AI.AzureOpenAI.Deployment != "my-deploy" {
		t.Errorf("env model should stay on azure section, got %q", cfg.AI.AzureOpenAI.Deployment)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.AI.Cache.Enabled {
		t.Error("cache should be disabled by override")
	}
	if cfg.Output.Format != "junit" {
		t.Errorf("format = %q, want junit", cfg.Output.Format)
	}
}

func TestEffectiveStandards(t *testing.T) {
	cfg := Default()
	cfg.Standards = StandardsConfig{
		Required: []string{"base"},
		Default:  []string{"hipaa", "soc2", "base"},
		Profiles: map[string]Profile{
			"medical": {Standards: []string{"fda-820", "hipaa"}},
		},
	}

	tests := []struct {
		name    string
		profile string
		add     []string
		skip    []string
		want    []string
	}{
		{"defaults", "", nil, nil, []string{"base", "hipaa", "soc2"}},
		{"skip", "", nil, []string{"soc2"}, []string{"base", "hipaa"}},
		{"default profile name", "default", nil, nil, []string{"base", "hipaa", "soc2"}},
		{"profile", "medical", []string{"iso", ""}, []string{"hipaa"}, []string{"base", "fda-820", "hipaa", "iso"}},
		{"unknown profile", "nope", nil, nil, []string{"base"}},
		{"add duplicate", "", []string{"hipaa", "pci"}, nil, []string{"base", "hipaa", "soc2", "pci"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.EffectiveStandards(tt.profile, tt.add, tt.skip)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EffectiveStandards = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStandardsDir(t *testing.T) {
	cfg := Default()
	if got, want := cfg.StandardsDir("/p"), filepath.Join("/p", ".conclave", "standards"); got != want {
		t.Errorf("StandardsDir = %q, want %q", got, want)
	}
	cfg.Standards.Dir = "compliance"
	if got, want := cfg.StandardsDir("/p"), filepath.Join("/p", "compliance"); got != want {
		t.Errorf("StandardsDir = %q, want %q", got, want)
	}
}

func TestYAML(t *testing.T) {
	cfg := Default()
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	for _, want := range []string{"provider: anthropic", "guardian:", "azure-openai:", "max_context_kb: 100"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("YAML output missing %q", want)
		}
	}
}
