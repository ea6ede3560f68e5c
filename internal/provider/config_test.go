package provider

import (
	"context"
	"strings"
	"testing"
)

// validConfig returns a Config that passes Validate for backend b.
func validConfig(b Backend) Config {
	return Config{
		Backend:     b,
		Gemini:      ProviderGemini{APIKey: "AIza-test", Model: DefaultGeminiModel},
		OpenAI:      ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o-mini"},
		AzureOpenAI: ProviderAzureOpenAI{APIKey: "az-key", Endpoint: "https://x.openai.azure.com", Deployment: "gpt-4.1", APIVersion: "2024-02-01"},
		Ollama:      ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
		Ark:         ProviderArk{APIKey: "ark-key", Model: "ep-20240101-abcde"},
		Tuning:      SharedTuning{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature},
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend Backend
		mutate  func(*Config)
		wantErr string
	}{
		{name: "gemini", backend: BackendGemini},
		{name: "openai", backend: BackendOpenAI},
		{name: "azure", backend: BackendAzure},
		{name: "ollama", backend: BackendOllama},
		{name: "ark", backend: BackendArk},
		{name: "other sections ignored", backend: BackendOllama, mutate: func(c *Config) { c.Gemini = ProviderGemini{} }},
		{name: "tuning zero is valid", backend: BackendGemini, mutate: func(c *Config) { c.Tuning = SharedTuning{} }},

		{name: "gemini key", backend: BackendGemini, mutate: func(c *Config) { c.Gemini.APIKey = "" }, wantErr: "GOOGLE_API_KEY"},
		{name: "gemini blank model", backend: BackendGemini, mutate: func(c *Config) { c.Gemini.Model = "  " }, wantErr: "GEMINI_MODEL"},
		{name: "openai key", backend: BackendOpenAI, mutate: func(c *Config) { c.OpenAI.APIKey = "" }, wantErr: "OPENAI_API_KEY"},
		{
			name:    "azure reports every missing setting",
			backend: BackendAzure,
			mutate:  func(c *Config) { c.AzureOpenAI = ProviderAzureOpenAI{} },
			wantErr: "AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT",
		},
		{name: "ollama host", backend: BackendOllama, mutate: func(c *Config) { c.Ollama.Host = "" }, wantErr: "OLLAMA_HOST"},
		{name: "ark endpoint id", backend: BackendArk, mutate: func(c *Config) { c.Ark.Model = "" }, wantErr: "ARK_MODEL"},
		{name: "unknown backend", backend: "bedrock", wantErr: "unknown backend"},
		{name: "negative max tokens", backend: BackendGemini, mutate: func(c *Config) { c.Tuning.MaxTokens = -1 }, wantErr: "MODEL_MAX_TOKENS"},
		{name: "temperature too high", backend: BackendOpenAI, mutate: func(c *Config) { c.Tuning.Temperature = 2.5 }, wantErr: "MODEL_TEMPERATURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig(tt.backend)
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()

	want := map[Backend]string{
		BackendGemini: DefaultGeminiModel,
		BackendOpenAI: "gpt-4o-mini",
		BackendAzure:  "gpt-4.1",
		BackendOllama: "llama3",
		BackendArk:    "ep-20240101-abcde",
		"unknown":     "",
	}
	for b, name := range want {
		cfg := validConfig(b)
		if got := cfg.ModelName(); got != name {
			t.Errorf("%s: ModelName() = %q, want %q", b, got, name)
		}
	}
}

func TestIsReasoningModel(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]bool{
		"o1":            true,
		"o3-mini":       true,
		"O4-MINI":       true,
		"codex-mini":    true,
		"gpt-5.2-codex": false,
		"o10":           false,
		"gpt-4o":        false,
		"gpt-4.1":       false,
		"":              false,
	} {
		if got := isReasoningModel(model); got != want {
			t.Errorf("isReasoningModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("GOOGLE_API_KEY", "AIza-env")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("MODEL_MAX_TOKENS", "")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendGemini {
		t.Errorf("backend = %q, want gemini", cfg.Backend)
	}
	if cfg.Gemini.APIKey != "AIza-env" || cfg.Gemini.Model != DefaultGeminiModel {
		t.Errorf("unexpected gemini config: %+v", cfg.Gemini)
	}
	if cfg.Tuning.MaxTokens != DefaultMaxTokens || cfg.Tuning.Temperature != DefaultTemperature {
		t.Errorf("tuning = %+v, want defaults", cfg.Tuning)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigFromEnv_Ark(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "ark")
	t.Setenv("ARK_API_KEY", "ark-env")
	t.Setenv("ARK_MODEL", "ep-env")
	t.Setenv("ARK_BASE_URL", "https://ark.example.com/api/v3")
	t.Setenv("MODEL_MAX_TOKENS", "512")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendArk || cfg.Ark.APIKey != "ark-env" || cfg.Ark.Model != "ep-env" {
		t.Errorf("unexpected ark config: %+v", cfg.Ark)
	}
	if cfg.Ark.BaseURL != "https://ark.example.com/api/v3" {
		t.Errorf("BaseURL = %q", cfg.Ark.BaseURL)
	}
	if cfg.Tuning.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", cfg.Tuning.MaxTokens)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := validConfig(BackendOpenAI)
	cfg.OpenAI.APIKey = ""
	if _, err := New(context.Background(), &cfg); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("New error = %v, want missing key", err)
	}
}

func TestNew_Ollama(t *testing.T) {
	t.Parallel()

	cfg := validConfig(BackendOllama)
	m, err := New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m == nil {
		t.Fatal("New returned a nil model")
	}
}

func TestTuning(t *testing.T) {
	t.Parallel()

	cfg := &Config{Tuning: SharedTuning{MaxTokens: 0, Temperature: 0.3}}
	maxTokens, temp := tuning(cfg)
	if maxTokens != nil {
		t.Errorf("zero MaxTokens must leave the backend default, got %d", *maxTokens)
	}
	if temp == nil || *temp != 0.3 {
		t.Errorf("temperature = %v, want 0.3", temp)
	}

	cfg.Tuning.MaxTokens = 256
	maxTokens, _ = tuning(cfg)
	if maxTokens == nil || *maxTokens != 256 {
		t.Fatalf("max tokens = %v, want 256", maxTokens)
	}
	*maxTokens = 1
	if cfg.Tuning.MaxTokens != 256 {
		t.Error("tuning must return copies")
	}
}
