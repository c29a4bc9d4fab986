package config

const (
	defaultAPIVersion = "2024-09-01-preview"
	defaultClientName = "tokenprobe"

	defaultSystemPrompt     = "You are a helpful AI assistant."
	defaultMaxTokens        = 200
	defaultTemperature      = 0.7
	defaultTopP             = 0.95
	defaultFrequencyPenalty = 0
	defaultPresencePenalty  = 0

	defaultTokenModel = "gpt-4o-mini-2024-07-18"

	defaultOpenAIDeployment = "gpt-35-turbo"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Gateway: GatewayConfig{
			APIVersion: defaultAPIVersion,
			ClientName: defaultClientName,
		},
		Request: RequestConfig{
			SystemPrompt:     defaultSystemPrompt,
			MaxTokens:        defaultMaxTokens,
			Temperature:      defaultTemperature,
			TopP:             defaultTopP,
			FrequencyPenalty: defaultFrequencyPenalty,
			PresencePenalty:  defaultPresencePenalty,
		},
		Tokens: TokensConfig{
			Model: defaultTokenModel,
		},
		Trace: TraceConfig{
			OpenAIDeployment: defaultOpenAIDeployment,
			OpenAIAPIVersion: defaultAPIVersion,
		},
	}
}
