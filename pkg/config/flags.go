package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --token-model
// on both "tokenprobe run" and "tokenprobe trace").
type Flag struct {
	// Name is the long flag name (e.g. "gateway").
	Name string

	// Shorthand is the one-letter short flag (e.g. "g"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "gateway.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag, AddFloatFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagGateway          = "gateway"
	FlagDeployment       = "deployment"
	FlagAPIVersion       = "api-version"
	FlagClientName       = "client-name"
	FlagSystemPrompt     = "system"
	FlagMaxTokens        = "max-tokens"
	FlagTemperature      = "temperature"
	FlagTopP             = "top-p"
	FlagFrequencyPenalty = "frequency-penalty"
	FlagPresencePenalty  = "presence-penalty"
	FlagTokenModel       = "token-model"
	FlagResourceGroup    = "resource-group"
	FlagARMDeployment    = "arm-deployment"
	FlagOpenAIDeployment = "openai-deployment"
	FlagOpenAIAPIVersion = "openai-api-version"
)

// Flags is the registry shared by every tokenprobe command.
var Flags = FlagSet{
	FlagGateway:          {Name: "gateway", Shorthand: "g", ViperKey: "gateway.url", Description: "API Management gateway URL"},
	FlagDeployment:       {Name: "deployment", ViperKey: "gateway.deployment", Description: "Model deployment name behind the gateway"},
	FlagAPIVersion:       {Name: "api-version", ViperKey: "gateway.api_version", Description: "Azure OpenAI api-version query parameter"},
	FlagClientName:       {Name: "client-name", ViperKey: "gateway.client_name", Description: "Value of the Client-Name request header"},
	FlagSystemPrompt:     {Name: "system", Shorthand: "s", ViperKey: "request.system_prompt", Description: "System prompt"},
	FlagMaxTokens:        {Name: "max-tokens", ViperKey: "request.max_tokens", Description: "Maximum completion tokens"},
	FlagTemperature:      {Name: "temperature", ViperKey: "request.temperature", Description: "Sampling temperature"},
	FlagTopP:             {Name: "top-p", ViperKey: "request.top_p", Description: "Nucleus sampling probability mass"},
	FlagFrequencyPenalty: {Name: "frequency-penalty", ViperKey: "request.frequency_penalty", Description: "Frequency penalty"},
	FlagPresencePenalty:  {Name: "presence-penalty", ViperKey: "request.presence_penalty", Description: "Presence penalty"},
	FlagTokenModel:       {Name: "token-model", Shorthand: "m", ViperKey: "tokens.model", Description: "Model whose encoding is used for local token counts"},
	FlagResourceGroup:    {Name: "resource-group", ViperKey: "trace.resource_group", Description: "Resource group of the gateway deployment"},
	FlagARMDeployment:    {Name: "arm-deployment", ViperKey: "trace.arm_deployment", Description: "ARM deployment that created the gateway"},
	FlagOpenAIDeployment: {Name: "openai-deployment", ViperKey: "trace.openai_deployment", Description: "Model deployment name for traced requests"},
	FlagOpenAIAPIVersion: {Name: "openai-api-version", ViperKey: "trace.openai_api_version", Description: "api-version for traced requests"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultViper returns a viper instance holding only the NewDefaultConfig values.
func defaultViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
