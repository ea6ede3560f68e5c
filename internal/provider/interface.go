// Package provider selects and constructs the generative model behind the
// answer composer. Supported backends: Google Gemini, OpenAI, Azure OpenAI,
// Ollama and Volcengine Ark, all through eino's chat model abstraction.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// Default generation tuning. Short, near-deterministic answers suit
// grounded question answering.
const (
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultMaxTokens   = 256
	DefaultTemperature = 0.1
)

// ProviderGemini holds Google AI Studio settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderOpenAI holds OpenAI API settings.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings. Deployment is used as the
// model name.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderOllama holds local Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderArk holds Volcengine Ark settings. Model is the endpoint ID.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning applies to every backend that supports it.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int

	// Temperature controls response randomness (0.0 to 2.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is read.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Gemini      ProviderGemini
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ollama      ProviderOllama
	Ark         ProviderArk

	Tuning SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the environment variable that supplies it.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, env string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, env)
		}
	}
	switch c.Backend {
	case BackendGemini:
		need(c.Gemini.APIKey, "GOOGLE_API_KEY")
		need(c.Gemini.Model, "GEMINI_MODEL")
	case BackendOpenAI:
		need(c.OpenAI.APIKey, "OPENAI_API_KEY")
		need(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendAzure:
		need(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		need(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		need(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendOllama:
		need(c.Ollama.Host, "OLLAMA_HOST")
		need(c.Ollama.Model, "OLLAMA_MODEL")
	case BackendArk:
		need(c.Ark.APIKey, "ARK_API_KEY")
		need(c.Ark.Model, "ARK_MODEL")
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: gemini, openai, azure, ollama, ark", c.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	if c.Tuning.MaxTokens < 0 {
		return fmt.Errorf("provider: MODEL_MAX_TOKENS must not be negative, got %d", c.Tuning.MaxTokens)
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE must be within [0, 2], got %v", c.Tuning.Temperature)
	}
	return nil
}

// ModelName returns the model identifier the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendOllama:
		return c.Ollama.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}
