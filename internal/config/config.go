package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lamim/storyforge/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Model           ModelConfig           `toml:"model" yaml:"model"`
	Reasoning       ReasoningConfig       `toml:"reasoning" yaml:"reasoning"`
	Retry           RetryConfig           `toml:"retry" yaml:"retry"`
	WordRequirement WordRequirementConfig `toml:"word_requirement" yaml:"word_requirement"`
	PromptTemplates PromptTemplates       `toml:"prompt_templates" yaml:"prompt_templates"`
	Output          OutputConfig          `toml:"output" yaml:"output"`
	Metrics         MetricsConfig         `toml:"metrics" yaml:"metrics"`
	Catalog         CatalogConfig         `toml:"catalog" yaml:"catalog"`
}

// ModelConfig represents configuration for the model endpoint
type ModelConfig struct {
	Provider           string  `toml:"provider" yaml:"provider"` // "openai" (any OpenAI-compatible server) or "ollama"
	BaseURL            string  `toml:"base_url" yaml:"base_url"`
	ModelName          string  `toml:"model_name" yaml:"model_name"`
	Temperature        float64 `toml:"temperature" yaml:"temperature"`
	TopP               float64 `toml:"top_p" yaml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens" yaml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute" yaml:"rate_limit_per_minute"` // 0 = unlimited
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds" yaml:"http_timeout_seconds"`   // Whole-stream timeout (0 = no timeout)
}

// ReasoningConfig selects how reasoning tokens are delivered by the model
type ReasoningConfig struct {
	Mode        string `toml:"mode" yaml:"mode"` // "separate" or "markup"
	StartMarker string `toml:"start_marker" yaml:"start_marker"`
	EndMarker   string `toml:"end_marker" yaml:"end_marker"`
}

// RetryConfig bounds how often a failed stream is re-requested
type RetryConfig struct {
	MaxRetries   int `toml:"max_retries" yaml:"max_retries"`     // Total attempts per request (default 10)
	PauseSeconds int `toml:"pause_seconds" yaml:"pause_seconds"` // Fixed pause between attempts (default 20, -1 = none)
}

// WordRequirementConfig holds the word-count range the outline prompt asks for
type WordRequirementConfig struct {
	MinWords int `toml:"min_words" yaml:"min_words"`
	MaxWords int `toml:"max_words" yaml:"max_words"`
	Sample1  int `toml:"sample_1" yaml:"sample_1"`
	Sample2  int `toml:"sample_2" yaml:"sample_2"`
}

// PromptTemplates holds the customizable prompt templates.
// Each template may be given inline or loaded from a file path relative to the config file.
type PromptTemplates struct {
	SystemPrompt string `toml:"system_prompt" yaml:"system_prompt"` // Optional system message for every request
	Plan         string `toml:"plan" yaml:"plan"`
	PlanFile     string `toml:"plan_file" yaml:"plan_file"`
	Write        string `toml:"write" yaml:"write"`
	WriteFile    string `toml:"write_file" yaml:"write_file"`
}

// OutputConfig controls where session workspaces are created
type OutputConfig struct {
	SavePath string `toml:"save_path" yaml:"save_path"`
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"` // e.g. ":2112"; empty disables the endpoint
}

// CatalogConfig locates the session index database
type CatalogConfig struct {
	Path string `toml:"path" yaml:"path"` // Defaults to <save_path>/catalog.db
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys map[string]string
}

const (
	// ProviderOpenAI is any server speaking the OpenAI chat completions protocol
	ProviderOpenAI = "openai"
	// ProviderOllama is a native Ollama server
	ProviderOllama = "ollama"

	// DefaultStartMarker opens an embedded reasoning block
	DefaultStartMarker = "<think>"
	// DefaultEndMarker closes an embedded reasoning block
	DefaultEndMarker = "</think>"
)

// Pause returns the configured pause between attempts
func (r RetryConfig) Pause() time.Duration {
	if r.PauseSeconds < 0 {
		return 0
	}
	return time.Duration(r.PauseSeconds) * time.Second
}

// ReasoningMode returns the parsed reasoning delivery mode
func (r ReasoningConfig) ReasoningMode() models.ReasoningMode {
	return models.ReasoningMode(r.Mode)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateModelConfig(c.Model); err != nil {
		return err
	}

	if _, err := models.ParseReasoningMode(c.Reasoning.Mode); err != nil {
		return fmt.Errorf("reasoning.mode: %w", err)
	}
	if c.Reasoning.ReasoningMode() == models.ReasoningMarkup {
		if c.Reasoning.StartMarker == "" || c.Reasoning.EndMarker == "" {
			return fmt.Errorf("reasoning.start_marker and reasoning.end_marker are required for markup mode")
		}
		if c.Reasoning.StartMarker == c.Reasoning.EndMarker {
			return fmt.Errorf("reasoning.start_marker and reasoning.end_marker must differ")
		}
	}

	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1 (got %d)", c.Retry.MaxRetries)
	}
	if c.Retry.PauseSeconds < -1 {
		return fmt.Errorf("retry.pause_seconds must be -1 or greater (got %d)", c.Retry.PauseSeconds)
	}

	if err := c.WordRequirement.Validate(); err != nil {
		return err
	}

	if c.PromptTemplates.Plan == "" {
		return fmt.Errorf("prompt_templates.plan is required")
	}
	if c.PromptTemplates.Write == "" {
		return fmt.Errorf("prompt_templates.write is required")
	}

	if c.Output.SavePath == "" {
		return fmt.Errorf("output.save_path is required")
	}

	return nil
}

// Validate checks min < min(sample) < max(sample) < max
func (w WordRequirementConfig) Validate() error {
	lo, hi := min(w.Sample1, w.Sample2), max(w.Sample1, w.Sample2)
	if w.MinWords < 1 {
		return fmt.Errorf("word_requirement.min_words must be at least 1 (got %d)", w.MinWords)
	}
	if !(w.MinWords < lo && lo < hi && hi < w.MaxWords) {
		return fmt.Errorf("word_requirement must satisfy min_words < min(sample_1, sample_2) < max(sample_1, sample_2) < max_words (got %d, %d, %d, %d)",
			w.MinWords, w.Sample1, w.Sample2, w.MaxWords)
	}
	return nil
}

func validateModelConfig(mc ModelConfig) error {
	if mc.Provider != ProviderOpenAI && mc.Provider != ProviderOllama {
		return fmt.Errorf("model.provider must be %q or %q (got %q)", ProviderOpenAI, ProviderOllama, mc.Provider)
	}
	if mc.BaseURL == "" {
		return fmt.Errorf("model.base_url is required")
	}
	if mc.ModelName == "" {
		return fmt.Errorf("model.model_name is required")
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2")
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("model.top_p must be between 0 and 1")
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("model.max_output_tokens must be at least 1")
	}
	if mc.RateLimitPerMinute < 0 {
		return fmt.Errorf("model.rate_limit_per_minute must not be negative")
	}
	if mc.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("model.http_timeout_seconds must not be negative")
	}
	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Load generic API key (provider-agnostic)
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}

	// Load provider-specific API keys (optional, override generic)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		secrets.APIKeys["deepseek"] = key
	}
	if key := os.Getenv("DASHSCOPE_API_KEY"); key != "" {
		secrets.APIKeys["dashscope"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if s == nil {
		return ""
	}
	if provider := GetProviderName(baseURL); provider != baseURL {
		if key := s.APIKeys[provider]; key != "" {
			return key
		}
	}

	// Fall back to generic API_KEY for any OpenAI-compatible provider
	if key := s.APIKeys["generic"]; key != "" {
		return key
	}

	// If no key found, return empty (could be local server without auth)
	return ""
}

// GetProviderName extracts a provider name from a base URL for rate limiting
func GetProviderName(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "openai.com"):
		return "openai"
	case strings.Contains(baseURL, "deepseek.com"):
		return "deepseek"
	case strings.Contains(baseURL, "dashscope.aliyuncs.com"):
		return "dashscope"
	case strings.Contains(baseURL, "together.xyz"), strings.Contains(baseURL, "together.ai"):
		return "together"
	}
	// For localhost or unknown providers, use the full base URL as provider name
	return baseURL
}
