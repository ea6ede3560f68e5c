package provider

import (
	"context"
	"fmt"
	"strings"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// tuning returns pointers to per-call copies of the shared tuning values.
// A zero MaxTokens leaves the backend default in place.
func tuning(cfg *Config) (*int, *float32) {
	temp := cfg.Tuning.Temperature
	if cfg.Tuning.MaxTokens == 0 {
		return nil, &temp
	}
	maxTokens := cfg.Tuning.MaxTokens
	return &maxTokens, &temp
}

// reasoningPrefixes are the model families that reject temperature and
// max_tokens.
var reasoningPrefixes = []string{"o1", "o3", "o4", "codex"}

// isReasoningModel reports whether model (or an Azure deployment named after
// it) belongs to a reasoning family.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, p := range reasoningPrefixes {
		if m == p || strings.HasPrefix(m, p+"-") {
			return true
		}
	}
	return false
}

// newGemini constructs a chat model backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	maxTokens, temp := tuning(cfg)
	return einogemini.NewChatModel(ctx, &einogemini.Config{ //nolint:wrapcheck // constructor passthrough
		Client:      client,
		Model:       cfg.Gemini.Model,
		MaxTokens:   maxTokens,
		Temperature: temp,
	})
}

// newOpenAI constructs a chat model backed by the OpenAI API or a
// compatible gateway.
func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens, temp := tuning(cfg)
	if isReasoningModel(cfg.OpenAI.Model) {
		maxTokens, temp = nil, nil
	}
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temp,
	})
}

// newAzure constructs a chat model backed by Azure OpenAI Service.
func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens, temp := tuning(cfg)
	if isReasoningModel(cfg.AzureOpenAI.Deployment) {
		maxTokens, temp = nil, nil
	}
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.AzureOpenAI.Deployment,
		APIKey:      cfg.AzureOpenAI.APIKey,
		BaseURL:     cfg.AzureOpenAI.Endpoint,
		ByAzure:     true,
		APIVersion:  cfg.AzureOpenAI.APIVersion,
		MaxTokens:   maxTokens,
		Temperature: temp,
		// Use the deployment name as-is; the default mapper strips dots and
		// colons, which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	})
}

// newOllama constructs a chat model backed by a local Ollama instance.
// Tuning is left to the Ollama model file.
func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
	})
}

// newArk constructs a chat model backed by Volcengine Ark.
func newArk(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens, temp := tuning(cfg)
	return einoark.NewChatModel(ctx, &einoark.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temp,
	})
}
