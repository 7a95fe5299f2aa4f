// Package provider registers the built-in model backends.
//
// The default registry knows these provider prefixes:
//
//	openai      OpenAI Chat Completions            credential "openai_api_key"
//	anthropic   Anthropic Messages                 credential "anthropic_api_key"
//	openrouter  OpenAI-compatible, provider order  credential "openrouter_api_key"
//	groq        OpenAI-compatible                  credential "groq_api_key"
//	ollama      OpenAI-compatible, local           no credential
package provider

import (
	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/hupe1980/agentloop/model"
	anthropicmodel "github.com/hupe1980/agentloop/model/anthropic"
	openaimodel "github.com/hupe1980/agentloop/model/openai"
)

// Credential types looked up in the run's credential map.
const (
	CredentialOpenAI     = "openai_api_key"
	CredentialAnthropic  = "anthropic_api_key"
	CredentialOpenRouter = "openrouter_api_key"
	CredentialGroq       = "groq_api_key"
)

// Default endpoints of the OpenAI-compatible providers.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"
)

// Specs returns the built-in provider specs.
func Specs() []model.ProviderSpec {
	return []model.ProviderSpec{
		{Name: "openai", CredentialType: CredentialOpenAI, Factory: OpenAI},
		{Name: "anthropic", CredentialType: CredentialAnthropic, Factory: Anthropic},
		{Name: "openrouter", CredentialType: CredentialOpenRouter, BaseURL: OpenRouterBaseURL, Factory: OpenAI},
		{Name: "groq", CredentialType: CredentialGroq, BaseURL: GroqBaseURL, Factory: OpenAI},
		{Name: "ollama", BaseURL: OllamaBaseURL, Factory: OpenAI},
	}
}

// NewRegistry returns a registry holding the built-in providers.
func NewRegistry() *model.Registry {
	return model.NewRegistry(Specs()...)
}

// OpenAI builds an OpenAI Chat Completions backend. It serves every
// OpenAI-compatible provider; spec.BaseURL selects the endpoint. The
// provider order hint is only forwarded to OpenRouter.
func OpenAI(cfg model.Config, spec model.ProviderSpec, credential string) (model.Model, error) {
	_, name, err := model.ParseIdentifier(cfg.Identifier)
	if err != nil {
		return nil, err
	}

	// Retries are owned by the retry controller.
	reqOpts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(0)}
	if credential != "" {
		reqOpts = append(reqOpts, openaiopt.WithAPIKey(credential))
	} else {
		reqOpts = append(reqOpts, openaiopt.WithAPIKey("none"))
	}
	if spec.BaseURL != "" {
		reqOpts = append(reqOpts, openaiopt.WithBaseURL(spec.BaseURL))
	}

	return openaimodel.NewModel(func(o *openaimodel.Options) {
		o.Model = name
		o.Provider = spec.Name
		o.Temperature = cfg.Temperature
		o.MaxCompletionTokens = int64(cfg.OutputTokens())
		o.JSONMode = cfg.JSONMode
		if spec.Name == "openrouter" {
			o.ProviderOrder = cfg.ProviderOrder
		}
		o.RequestOptions = reqOpts
	}), nil
}

// Anthropic builds an Anthropic Messages backend.
func Anthropic(cfg model.Config, spec model.ProviderSpec, credential string) (model.Model, error) {
	_, name, err := model.ParseIdentifier(cfg.Identifier)
	if err != nil {
		return nil, err
	}

	reqOpts := []anthropicopt.RequestOption{anthropicopt.WithMaxRetries(0)}
	if spec.BaseURL != "" {
		reqOpts = append(reqOpts, anthropicopt.WithBaseURL(spec.BaseURL))
	}

	return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
		o.Model = anthropic.Model(name)
		o.Temperature = cfg.Temperature
		o.MaxTokens = int64(cfg.OutputTokens())
		o.JSONMode = cfg.JSONMode
		o.APIKey = credential
		o.RequestOptions = reqOpts
	}), nil
}
