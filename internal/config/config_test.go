package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{
		Model: ModelConfig{
			Provider:           ProviderOpenAI,
			BaseURL:            "https://api.example.com/v1",
			ModelName:          "test-model",
			Temperature:        0.7,
			TopP:               1.0,
			MaxOutputTokens:    1024,
			RateLimitPerMinute: 60,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Model.Provider = "gemini" },
			wantErr: true,
		},
		{
			name:    "missing model name",
			mutate:  func(c *Config) { c.Model.ModelName = "" },
			wantErr: true,
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Model.Temperature = 2.5 },
			wantErr: true,
		},
		{
			name:    "unknown reasoning mode",
			mutate:  func(c *Config) { c.Reasoning.Mode = "inline" },
			wantErr: true,
		},
		{
			name: "markup with identical markers",
			mutate: func(c *Config) {
				c.Reasoning.Mode = "markup"
				c.Reasoning.EndMarker = c.Reasoning.StartMarker
			},
			wantErr: true,
		},
		{
			name:    "markup with default markers",
			mutate:  func(c *Config) { c.Reasoning.Mode = "markup" },
			wantErr: false,
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Retry.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "no pause",
			mutate:  func(c *Config) { c.Retry.PauseSeconds = -1 },
			wantErr: false,
		},
		{
			name:    "missing save path",
			mutate:  func(c *Config) { c.Output.SavePath = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWordRequirementValidate(t *testing.T) {
	tests := []struct {
		name    string
		wr      WordRequirementConfig
		wantErr bool
	}{
		{"defaults", WordRequirementConfig{500, 3000, 800, 2000}, false},
		{"samples swapped", WordRequirementConfig{500, 3000, 2000, 800}, false},
		{"equal samples", WordRequirementConfig{500, 3000, 800, 800}, true},
		{"sample below min", WordRequirementConfig{500, 3000, 400, 2000}, true},
		{"sample equals max", WordRequirementConfig{500, 3000, 800, 3000}, true},
		{"min not positive", WordRequirementConfig{0, 3000, 800, 2000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wr.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPause(t *testing.T) {
	if got := (RetryConfig{PauseSeconds: 20}).Pause(); got != 20*time.Second {
		t.Errorf("Pause() = %v, want 20s", got)
	}
	if got := (RetryConfig{PauseSeconds: -1}).Pause(); got != 0 {
		t.Errorf("Pause() = %v, want 0", got)
	}
}

const tomlConfig = `
[model]
provider = "ollama"
base_url = "http://localhost:11434"
model_name = "qwen3:8b"
temperature = 0.6

[reasoning]
mode = "markup"

[retry]
max_retries = 3
pause_seconds = 5

[word_requirement]
min_words = 300
max_words = 2000
sample_1 = 600
sample_2 = 1200

[output]
save_path = "out"
`

const yamlConfig = `
model:
  provider: ollama
  base_url: http://localhost:11434
  model_name: "qwen3:8b"
  temperature: 0.6
reasoning:
  mode: markup
retry:
  max_retries: 3
  pause_seconds: 5
word_requirement:
  min_words: 300
  max_words: 2000
  sample_1: 600
  sample_2: 1200
output:
  save_path: out
`

func TestLoad_TOMLAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "config.toml")
	yamlPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(tomlPath, []byte(tomlConfig), 0644); err != nil {
		t.Fatalf("Failed to write TOML config: %v", err)
	}
	if err := os.WriteFile(yamlPath, []byte(yamlConfig), 0644); err != nil {
		t.Fatalf("Failed to write YAML config: %v", err)
	}

	fromTOML, _, err := Load(tomlPath)
	if err != nil {
		t.Fatalf("Load(toml) error = %v", err)
	}
	fromYAML, _, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load(yaml) error = %v", err)
	}

	if !reflect.DeepEqual(fromTOML, fromYAML) {
		t.Errorf("TOML and YAML configs differ:\n%+v\n%+v", fromTOML, fromYAML)
	}

	if fromTOML.Model.Provider != ProviderOllama {
		t.Errorf("Provider = %q, want ollama", fromTOML.Model.Provider)
	}
	if fromTOML.Reasoning.StartMarker != DefaultStartMarker || fromTOML.Reasoning.EndMarker != DefaultEndMarker {
		t.Errorf("Markers not defaulted: %q %q", fromTOML.Reasoning.StartMarker, fromTOML.Reasoning.EndMarker)
	}
	if fromTOML.Catalog.Path != filepath.Join("out", "catalog.db") {
		t.Errorf("Catalog path = %q", fromTOML.Catalog.Path)
	}
	if fromTOML.PromptTemplates.Plan != GetDefaultPlanTemplate() {
		t.Error("Plan template was not defaulted")
	}
}

func TestLoad_TemplateFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plan.tmpl"), []byte("Plan {{.Instruction}}"), 0644); err != nil {
		t.Fatalf("Failed to write template: %v", err)
	}
	cfgText := tomlConfig + "\n[prompt_templates]\nplan_file = \"plan.tmpl\"\n"
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(cfgText), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PromptTemplates.Plan != "Plan {{.Instruction}}" {
		t.Errorf("Plan template = %q", cfg.PromptTemplates.Plan)
	}
	if cfg.PromptTemplates.Write != GetDefaultWriteTemplate() {
		t.Error("Write template was not defaulted")
	}
}

func TestLoad_MissingTemplateFile(t *testing.T) {
	dir := t.TempDir()
	cfgText := tomlConfig + "\n[prompt_templates]\nwrite_file = \"missing.tmpl\"\n"
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(cfgText), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, _, err := Load(path); err == nil {
		t.Error("Load() with missing template file expected error, got nil")
	}
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key-123")
	t.Setenv("DEEPSEEK_API_KEY", "test-deepseek-key")

	secrets, err := LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}

	if secrets.APIKeys["openai"] != "test-key-123" {
		t.Errorf("Expected OpenAI key to be 'test-key-123', got %s", secrets.APIKeys["openai"])
	}

	if secrets.APIKeys["deepseek"] != "test-deepseek-key" {
		t.Errorf("Expected DeepSeek key to be 'test-deepseek-key', got %s", secrets.APIKeys["deepseek"])
	}
}

func TestGetAPIKey(t *testing.T) {
	secrets := &Secrets{
		APIKeys: map[string]string{
			"openai":   "openai-key",
			"deepseek": "deepseek-key",
		},
	}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"OpenAI URL", "https://api.openai.com/v1", "openai-key"},
		{"DeepSeek URL", "https://api.deepseek.com", "deepseek-key"},
		{"Unknown URL", "https://unknown.com/v1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := secrets.GetAPIKey(tt.baseURL)
			if got != tt.want {
				t.Errorf("GetAPIKey() = %v, want %v", got, tt.want)
			}
		})
	}

	secrets.APIKeys["generic"] = "generic-key"
	if got := secrets.GetAPIKey("http://localhost:8000/v1"); got != "generic-key" {
		t.Errorf("GetAPIKey() fallback = %v, want generic-key", got)
	}
}
