package config

import "fmt"

// ProviderConfig configures the chat-model backends. Anthropic is
// selected by a non-empty APIKey; Ollama is always available (it
// needs no credential, only a reachable BaseURL) and serves as the
// fallback provider when a bot's model isn't mapped to Anthropic.
type ProviderConfig struct {
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama"`
}

// AnthropicConfig configures the Anthropic Messages API client.
// APIKey is typically supplied via an ${ENV_VAR} reference that
// config.Load expands from the process environment, matching the
// teacher's account-credential convention.
type AnthropicConfig struct {
	APIKey string   `yaml:"api_key"`
	Models []string `yaml:"models"`
}

// OllamaConfig configures a local/self-hosted Ollama server.
type OllamaConfig struct {
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
}

// Configured reports whether an Anthropic client should be built.
func (a AnthropicConfig) Configured() bool {
	return a.APIKey != ""
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Ollama.BaseURL == "" {
		p.Ollama.BaseURL = "http://localhost:11434"
	}
}

// validateProviderConfig checks that every bot's model resolves to a
// configured provider: either it's one of Anthropic's declared
// models, or it falls through to Ollama (which has no enumerable
// model allowlist — any tag can be pulled at runtime, so Ollama
// accepts whatever isn't claimed by Anthropic).
func validateProviderConfig(p ProviderConfig, bots []BotConfig) error {
	anthropicModels := make(map[string]bool, len(p.Anthropic.Models))
	for _, m := range p.Anthropic.Models {
		anthropicModels[m] = true
	}

	for _, b := range bots {
		model, _ := b.ChatModelParams["model"].(string)
		if model == "" {
			return fmt.Errorf("bot %q: chat_model_params.model is required", b.Name)
		}
		if b.Provider == "anthropic" && !anthropicModels[model] {
			return fmt.Errorf("bot %q: model %q not listed under providers.anthropic.models", b.Name, model)
		}
		if b.Provider == "anthropic" && !p.Anthropic.Configured() {
			return fmt.Errorf("bot %q: provider anthropic requires providers.anthropic.api_key", b.Name)
		}
	}
	return nil
}
