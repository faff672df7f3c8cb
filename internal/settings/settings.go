// Package settings holds the stored model preferences. Nothing in the
// extraction path reads them.
package settings

import (
	"errors"
	"fmt"
	"slices"
)

// Provider names an LLM backend
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderLocal     Provider = "local"
)

// Providers in display order, with labels
var Providers = []struct {
	Value Provider `json:"value"`
	Label string   `json:"label"`
}{
	{ProviderOpenAI, "OpenAI"},
	{ProviderAnthropic, "Anthropic"},
	{ProviderGoogle, "Google AI"},
	{ProviderLocal, "Local Model"},
}

var modelOptions = map[Provider][]string{
	ProviderOpenAI:    {"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo"},
	ProviderAnthropic: {"claude-3-haiku", "claude-3-sonnet", "claude-3-opus"},
	ProviderGoogle:    {"gemini-pro", "gemini-pro-vision"},
	ProviderLocal:     {"ollama-llama2", "ollama-codellama", "custom"},
}

const (
	MinMaxTokens   = 100
	MaxMaxTokens   = 4000
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

var ErrInvalid = errors.New("invalid settings")

// Settings are the model preferences
type Settings struct {
	Provider    Provider `json:"llmProvider"`
	APIKey      string   `json:"apiKey"`
	Model       string   `json:"model"`
	MaxTokens   int      `json:"maxTokens"`
	Temperature float64  `json:"temperature"`
}

// Defaults returns the settings used when nothing is stored
func Defaults() Settings {
	return Settings{
		Provider:    ProviderOpenAI,
		APIKey:      "",
		Model:       "gpt-3.5-turbo",
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// ModelOptions lists the models offered for p, nil for unknown providers
func ModelOptions(p Provider) []string {
	return slices.Clone(modelOptions[p])
}

// WithProvider switches provider and picks its first model
func (s Settings) WithProvider(p Provider) Settings {
	s.Provider = p
	if models := modelOptions[p]; len(models) > 0 {
		s.Model = models[0]
	}
	return s
}

// Validate checks every field against its allowed range
func (s Settings) Validate() error {
	models, ok := modelOptions[s.Provider]
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalid, s.Provider)
	}
	if !slices.Contains(models, s.Model) {
		return fmt.Errorf("%w: model %q is not offered by %s", ErrInvalid, s.Model, s.Provider)
	}
	if s.MaxTokens < MinMaxTokens || s.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: maxTokens must be between %d and %d", ErrInvalid, MinMaxTokens, MaxMaxTokens)
	}
	if s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature must be between %.0f and %.0f", ErrInvalid, MinTemperature, MaxTemperature)
	}
	return nil
}
