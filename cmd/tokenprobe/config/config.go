// Package configcmder provides the config command for managing persistent
// tokenprobe configuration stored in the .tokenprobe/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/tokenprobe/pkg/config"
)

const configLongDesc string = `Manage persistent tokenprobe configuration.

Configuration is stored as config.toml in the .tokenprobe/ directory and
provides default values for command flags. CLI flags and environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  gateway.url, gateway.deployment, gateway.api_version, gateway.client_name,
  request.system_prompt, request.max_tokens, request.temperature,
  request.top_p, request.frequency_penalty, request.presence_penalty,
  tokens.model,
  trace.resource_group, trace.arm_deployment,
  trace.openai_deployment, trace.openai_api_version

Use subcommands to get, set, or list configuration values:
  tokenprobe config set <key> <value>    Set a configuration value
  tokenprobe config get <key>            Get a configuration value
  tokenprobe config list                 List all configuration values

Examples:
  tokenprobe config set gateway.url https://my-apim.azure-api.net
  tokenprobe config set tokens.model gpt-4o-2024-08-06
  tokenprobe config get gateway.deployment
  tokenprobe config list`

const configShortDesc string = "Manage persistent tokenprobe configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
