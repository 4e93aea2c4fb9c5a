package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file and environment variables.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func Load(configPath string) (*Config, *Secrets, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(configPath))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Template files are resolved relative to the config file
	if err := cfg.loadTemplateFiles(filepath.Dir(configPath)); err != nil {
		return nil, nil, err
	}

	// Apply defaults
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input security validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	// Load secrets from environment
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return cfg, secrets, nil
}

// Parse decodes raw configuration bytes. ext selects the format (".toml", ".yaml", ".yml").
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
	}
	return &cfg, nil
}

// Default returns a configuration with every optional field defaulted.
// Model fields still need to be filled in before it validates.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func (c *Config) loadTemplateFiles(baseDir string) error {
	files := []struct {
		name   string
		path   string
		target *string
	}{
		{"plan_file", c.PromptTemplates.PlanFile, &c.PromptTemplates.Plan},
		{"write_file", c.PromptTemplates.WriteFile, &c.PromptTemplates.Write},
	}

	for _, f := range files {
		if f.path == "" {
			continue
		}
		if *f.target != "" {
			return fmt.Errorf("prompt_templates: %s and its inline template are mutually exclusive", f.name)
		}
		path := f.path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read prompt_templates.%s: %w", f.name, err)
		}
		*f.target = string(data)
	}
	return nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = ProviderOpenAI
	}
	if cfg.Model.Provider == ProviderOllama && cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "http://localhost:11434"
	}
	if cfg.Model.Temperature == 0 {
		cfg.Model.Temperature = 0.7
	}
	if cfg.Model.TopP == 0 {
		cfg.Model.TopP = 1.0
	}
	if cfg.Model.MaxOutputTokens == 0 {
		cfg.Model.MaxOutputTokens = 8192
	}

	if cfg.Reasoning.Mode == "" {
		cfg.Reasoning.Mode = "separate"
	}
	if cfg.Reasoning.StartMarker == "" {
		cfg.Reasoning.StartMarker = DefaultStartMarker
	}
	if cfg.Reasoning.EndMarker == "" {
		cfg.Reasoning.EndMarker = DefaultEndMarker
	}

	// NOTE: 0 cannot be told apart from unset, so a pause of zero is spelled -1
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 10
	}
	if cfg.Retry.PauseSeconds == 0 {
		cfg.Retry.PauseSeconds = 20
	}

	if cfg.WordRequirement == (WordRequirementConfig{}) {
		cfg.WordRequirement = WordRequirementConfig{
			MinWords: 500,
			MaxWords: 3000,
			Sample1:  800,
			Sample2:  2000,
		}
	}

	if cfg.PromptTemplates.Plan == "" {
		cfg.PromptTemplates.Plan = GetDefaultPlanTemplate()
	}
	if cfg.PromptTemplates.Write == "" {
		cfg.PromptTemplates.Write = GetDefaultWriteTemplate()
	}

	if cfg.Output.SavePath == "" {
		cfg.Output.SavePath = "generated_texts"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = filepath.Join(cfg.Output.SavePath, "catalog.db")
	}
}
