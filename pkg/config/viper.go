package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/tokenprobe/pkg/dotdir"
)

// EnvPrefix is the prefix of all tokenprobe environment variables.
const EnvPrefix = "TOKENPROBE"

// legacyEnv maps config keys to the unprefixed environment variable names
// that older gateway scripts use. The prefixed name always wins.
var legacyEnv = map[string]string{
	"gateway.url":              "API_MANAGEMENT_GATEWAY_URL",
	"gateway.deployment":       "DEPLOYMENT_NAME",
	"gateway.api_version":      "API_VERSION",
	"tokens.model":             "MODEL_FOR_TOKENS",
	"trace.resource_group":     "RESOURCE_GROUP_NAME",
	"trace.arm_deployment":     "APIM_DEPLOYMENT_NAME",
	"trace.openai_deployment":  "OPENAI_DEPLOYMENT_NAME",
	"trace.openai_api_version": "OPENAI_API_VERSION",
}

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the TOKENPROBE_ prefix plus the legacy unprefixed names.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (TOKENPROBE_GATEWAY_URL, then API_MANAGEMENT_GATEWAY_URL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: TOKENPROBE_GATEWAY_URL, TOKENPROBE_TOKENS_MODEL, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Gateway
	v.SetDefault("gateway.url", d.Gateway.URL)
	v.SetDefault("gateway.deployment", d.Gateway.Deployment)
	v.SetDefault("gateway.api_version", d.Gateway.APIVersion)
	v.SetDefault("gateway.client_name", d.Gateway.ClientName)

	// Request
	v.SetDefault("request.system_prompt", d.Request.SystemPrompt)
	v.SetDefault("request.max_tokens", d.Request.MaxTokens)
	v.SetDefault("request.temperature", d.Request.Temperature)
	v.SetDefault("request.top_p", d.Request.TopP)
	v.SetDefault("request.frequency_penalty", d.Request.FrequencyPenalty)
	v.SetDefault("request.presence_penalty", d.Request.PresencePenalty)

	// Tokens
	v.SetDefault("tokens.model", d.Tokens.Model)

	// Trace
	v.SetDefault("trace.resource_group", d.Trace.ResourceGroup)
	v.SetDefault("trace.arm_deployment", d.Trace.ARMDeployment)
	v.SetDefault("trace.openai_deployment", d.Trace.OpenAIDeployment)
	v.SetDefault("trace.openai_api_version", d.Trace.OpenAIAPIVersion)
}

// FromViper reads the effective configuration out of v.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Gateway: GatewayConfig{
			URL:        v.GetString("gateway.url"),
			Deployment: v.GetString("gateway.deployment"),
			APIVersion: v.GetString("gateway.api_version"),
			ClientName: v.GetString("gateway.client_name"),
		},
		Request: RequestConfig{
			SystemPrompt:     v.GetString("request.system_prompt"),
			MaxTokens:        v.GetInt("request.max_tokens"),
			Temperature:      v.GetFloat64("request.temperature"),
			TopP:             v.GetFloat64("request.top_p"),
			FrequencyPenalty: v.GetFloat64("request.frequency_penalty"),
			PresencePenalty:  v.GetFloat64("request.presence_penalty"),
		},
		Tokens: TokensConfig{
			Model: v.GetString("tokens.model"),
		},
		Trace: TraceConfig{
			ResourceGroup:    v.GetString("trace.resource_group"),
			ARMDeployment:    v.GetString("trace.arm_deployment"),
			OpenAIDeployment: v.GetString("trace.openai_deployment"),
			OpenAIAPIVersion: v.GetString("trace.openai_api_version"),
		},
	}
}
