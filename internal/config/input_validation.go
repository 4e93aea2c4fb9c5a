package config

import (
	"fmt"
	"net/url"
	"unicode"

	"github.com/lamim/storyforge/internal/util"
)

const (
	// MaxInstructionLength is the maximum allowed length for a writing instruction, in runes
	MaxInstructionLength = 4000

	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB
)

// ValidateInputs performs additional security validation on user-controllable fields
func (c *Config) ValidateInputs() error {
	if err := validateModelName(c.Model.ModelName); err != nil {
		return err
	}

	if err := validateBaseURL(c.Model.BaseURL); err != nil {
		return err
	}

	if err := validateMarker("start_marker", c.Reasoning.StartMarker); err != nil {
		return err
	}
	if err := validateMarker("end_marker", c.Reasoning.EndMarker); err != nil {
		return err
	}

	if err := c.validateTemplates(); err != nil {
		return err
	}

	return nil
}

// ValidateInstruction checks a writing instruction before a session is created
func ValidateInstruction(instruction string) error {
	if instruction == "" {
		return fmt.Errorf("instruction is empty")
	}
	if n := len([]rune(instruction)); n > MaxInstructionLength {
		return fmt.Errorf("exceeds maximum length of %d characters (got %d)", MaxInstructionLength, n)
	}
	if containsControlChars(instruction) {
		return fmt.Errorf("contains invalid control characters")
	}
	return nil
}

// validateModelName checks model name for security issues
func validateModelName(modelName string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("model name exceeds maximum length of %d (got %d)",
			MaxModelNameLength, len(modelName))
	}

	if containsControlChars(modelName) {
		return fmt.Errorf("model name contains invalid control characters")
	}

	return nil
}

// validateBaseURL checks that the base URL is properly formatted and safe
func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid model.base_url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("model.base_url must use http or https scheme (got %s)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("model.base_url must have a host")
	}

	return nil
}

func validateMarker(name, marker string) error {
	if containsControlChars(marker) {
		return fmt.Errorf("reasoning.%s contains invalid control characters", name)
	}
	return nil
}

// validateTemplates checks template sizes and that every template parses
func (c *Config) validateTemplates() error {
	templates := []struct {
		name  string
		value string
	}{
		{"system_prompt", c.PromptTemplates.SystemPrompt},
		{"plan", c.PromptTemplates.Plan},
		{"write", c.PromptTemplates.Write},
	}

	for _, tmpl := range templates {
		if len(tmpl.value) > MaxTemplateSize {
			return fmt.Errorf("template '%s' exceeds maximum size of %d bytes (got %d)",
				tmpl.name, MaxTemplateSize, len(tmpl.value))
		}
		if _, err := util.ParsePromptTemplate(tmpl.name, tmpl.value); err != nil {
			return fmt.Errorf("prompt_templates.%s: %w", tmpl.name, err)
		}
	}

	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
