package app

import (
	"github.com/rs/dnscache"

	"github.com/switchboard-ai/switchboard/internal/config"
	"github.com/switchboard-ai/switchboard/internal/provider"
	"github.com/switchboard-ai/switchboard/internal/provider/anthropic"
	"github.com/switchboard-ai/switchboard/internal/provider/gemini"
	"github.com/switchboard-ai/switchboard/internal/provider/ollama"
	"github.com/switchboard-ai/switchboard/internal/provider/openai"
	"github.com/switchboard-ai/switchboard/internal/provider/perplexity"
)

// Default key environment variables per tool, used when the config does
// not name one.
var defaultKeyEnvs = map[string]string{
	"claude":     "ANTHROPIC_API_KEY",
	"gpt":        "OPENAI_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"perplexity": "PERPLEXITY_API_KEY",
	"local":      "OLLAMA_API_KEY",
}

// BuildRegistry constructs the adapter registry from config. Every known
// tool is registered unless explicitly disabled; adapters without keys
// simply report unavailable.
func BuildRegistry(cfg *config.Config, resolver *dnscache.Resolver) *provider.Registry {
	remote := provider.NewClients(resolver, true)
	local := provider.NewClients(resolver, false) // Ollama is typically HTTP/1.1

	reg := provider.NewRegistry()
	for _, name := range []string{"claude", "gpt", "gemini", "perplexity", "local"} {
		tc := cfg.Tools[name]
		if !tc.IsEnabled() {
			continue
		}
		if tc.APIKeyEnv == "" {
			tc.APIKeyEnv = defaultKeyEnvs[name]
		}
		key, model, base := tc.ResolvedAPIKey(), tc.Model, tc.BaseURL

		switch name {
		case "claude":
			reg.Register(anthropic.New(key, model, base, remote))
		case "gpt":
			reg.Register(openai.New(key, model, base, remote))
		case "gemini":
			reg.Register(gemini.New(key, model, base, remote))
		case "perplexity":
			reg.Register(perplexity.New(key, model, base, remote))
		case "local":
			reg.Register(ollama.New(key, model, base, local))
		}
	}
	return reg
}
