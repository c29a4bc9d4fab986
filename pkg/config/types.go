package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent tokenprobe configuration stored as
// config.toml in the .tokenprobe/ directory. The TOML layout uses sections
// for logical grouping. Secrets are not part of it; the subscription key
// lives in credentials.toml.
type Config struct {
	Version int           `toml:"version"`
	Gateway GatewayConfig `toml:"gateway"`
	Request RequestConfig `toml:"request"`
	Tokens  TokensConfig  `toml:"tokens"`
	Trace   TraceConfig   `toml:"trace"`
}

// GatewayConfig holds the API Management gateway target.
type GatewayConfig struct {
	URL        string `toml:"url,omitempty"`
	Deployment string `toml:"deployment,omitempty"`
	APIVersion string `toml:"api_version,omitempty"`
	ClientName string `toml:"client_name,omitempty"`
}

// RequestConfig holds the chat completion request parameters.
// Numeric fields are always written so an explicit zero survives a reload.
type RequestConfig struct {
	SystemPrompt     string  `toml:"system_prompt,omitempty"`
	MaxTokens        int     `toml:"max_tokens"`
	Temperature      float64 `toml:"temperature"`
	TopP             float64 `toml:"top_p"`
	FrequencyPenalty float64 `toml:"frequency_penalty"`
	PresencePenalty  float64 `toml:"presence_penalty"`
}

// TokensConfig holds local token counting settings.
type TokensConfig struct {
	Model string `toml:"model,omitempty"`
}

// TraceConfig holds the settings of a traced request: the ARM deployment
// that created the gateway and the model deployment behind it.
type TraceConfig struct {
	ResourceGroup    string `toml:"resource_group,omitempty"`
	ARMDeployment    string `toml:"arm_deployment,omitempty"`
	OpenAIDeployment string `toml:"openai_deployment,omitempty"`
	OpenAIAPIVersion string `toml:"openai_api_version,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"gateway.url":         stringKey(func(c *Config) *string { return &c.Gateway.URL }),
	"gateway.deployment":  stringKey(func(c *Config) *string { return &c.Gateway.Deployment }),
	"gateway.api_version": stringKey(func(c *Config) *string { return &c.Gateway.APIVersion }),
	"gateway.client_name": stringKey(func(c *Config) *string { return &c.Gateway.ClientName }),

	"request.system_prompt": stringKey(func(c *Config) *string { return &c.Request.SystemPrompt }),

	"request.max_tokens": {
		get: func(c *Config) string { return strconv.Itoa(c.Request.MaxTokens) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for request.max_tokens: %w", err)
			}
			if n <= 0 {
				return fmt.Errorf("invalid value for request.max_tokens: must be positive, got %d", n)
			}
			c.Request.MaxTokens = n
			return nil
		},
	},

	"request.temperature":       floatKey("request.temperature", func(c *Config) *float64 { return &c.Request.Temperature }),
	"request.top_p":             floatKey("request.top_p", func(c *Config) *float64 { return &c.Request.TopP }),
	"request.frequency_penalty": floatKey("request.frequency_penalty", func(c *Config) *float64 { return &c.Request.FrequencyPenalty }),
	"request.presence_penalty":  floatKey("request.presence_penalty", func(c *Config) *float64 { return &c.Request.PresencePenalty }),

	"tokens.model": stringKey(func(c *Config) *string { return &c.Tokens.Model }),

	"trace.resource_group":     stringKey(func(c *Config) *string { return &c.Trace.ResourceGroup }),
	"trace.arm_deployment":     stringKey(func(c *Config) *string { return &c.Trace.ARMDeployment }),
	"trace.openai_deployment":  stringKey(func(c *Config) *string { return &c.Trace.OpenAIDeployment }),
	"trace.openai_api_version": stringKey(func(c *Config) *string { return &c.Trace.OpenAIAPIVersion }),
}
