// Package runcmder provides the run command, which sends one streamed chat
// completion through the gateway and reconciles its token usage.
package runcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tokenprobe/pkg/config"
	"github.com/papercomputeco/tokenprobe/pkg/credentials"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
	"github.com/papercomputeco/tokenprobe/pkg/probe"
)

const runLongDesc string = `Send one streamed chat completion through the gateway and compare
the locally counted prompt and completion tokens with the usage the gateway
reports at the end of the stream.

The reply is echoed as it streams. Without --prompt the question is read
from stdin. The subscription key is taken from APIM_SUBSCRIPTION_KEY or from
credentials stored with "tokenprobe auth apim".

Flags fall back to TOKENPROBE_* environment variables, the legacy variables
(API_MANAGEMENT_GATEWAY_URL, DEPLOYMENT_NAME, API_VERSION, MODEL_FOR_TOKENS),
config.toml and finally the built-in defaults.

Examples:
  tokenprobe run -p "What is 2+2?"
  tokenprobe run -g https://my-apim.azure-api.net --deployment gpt-4o-mini
  tokenprobe run -p "Hello" --json --payloads > report.json
  tokenprobe run -p "Hello" --raw stream.txt`

const runShortDesc string = "Ask a question and reconcile token usage"

// runFlags are the registry flags the run command binds to viper.
var runFlags = []string{
	config.FlagGateway,
	config.FlagDeployment,
	config.FlagAPIVersion,
	config.FlagClientName,
	config.FlagSystemPrompt,
	config.FlagMaxTokens,
	config.FlagTemperature,
	config.FlagTopP,
	config.FlagFrequencyPenalty,
	config.FlagPresencePenalty,
	config.FlagTokenModel,
}

type runCommander struct {
	flagValues config.Config

	prompt   string
	raw      string
	json     bool
	markdown bool
	payloads bool

	cfg       *config.Config
	configDir string
}

func NewRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, runFlags)
			cmder.cfg = config.FromViper(v)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompt, err := cmder.readPrompt(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			key, err := SubscriptionKey(cmder.configDir)
			if err != nil {
				return err
			}

			session := &Session{
				Config:          cmder.cfg,
				Messages:        probe.Messages(cmder.cfg.Request.SystemPrompt, prompt),
				SubscriptionKey: key,
				RawPath:         cmder.raw,
				JSON:            cmder.json,
				Markdown:        cmder.markdown,
				Payloads:        cmder.payloads,
				ConfigDir:       cmder.configDir,
				Out:             cmd.OutOrStdout(),
				Logger:          logger.FromContext(cmd.Context()),
			}

			return session.Execute(cmd.Context())
		},
	}

	fv := &cmder.flagValues
	config.AddStringFlag(cmd, config.Flags, config.FlagGateway, &fv.Gateway.URL)
	config.AddStringFlag(cmd, config.Flags, config.FlagDeployment, &fv.Gateway.Deployment)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIVersion, &fv.Gateway.APIVersion)
	config.AddStringFlag(cmd, config.Flags, config.FlagClientName, &fv.Gateway.ClientName)
	config.AddStringFlag(cmd, config.Flags, config.FlagSystemPrompt, &fv.Request.SystemPrompt)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxTokens, &fv.Request.MaxTokens)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTemperature, &fv.Request.Temperature)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTopP, &fv.Request.TopP)
	config.AddFloatFlag(cmd, config.Flags, config.FlagFrequencyPenalty, &fv.Request.FrequencyPenalty)
	config.AddFloatFlag(cmd, config.Flags, config.FlagPresencePenalty, &fv.Request.PresencePenalty)
	config.AddStringFlag(cmd, config.Flags, config.FlagTokenModel, &fv.Tokens.Model)

	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", "", "Question to ask (default: read from stdin)")
	cmd.Flags().StringVar(&cmder.raw, "raw", "", "Write the raw event stream to this file")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the reply as markdown")
	cmd.Flags().BoolVar(&cmder.payloads, "payloads", false, "Include the raw chunk payloads in the report")

	return cmd
}

// readPrompt returns --prompt, or asks for the question on in.
func (c *runCommander) readPrompt(in io.Reader, out io.Writer) (string, error) {
	prompt := strings.TrimSpace(c.prompt)
	if prompt == "" {
		fmt.Fprint(out, "Enter your question: ")

		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			prompt = strings.TrimSpace(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading prompt: %w", err)
		}
	}

	if prompt == "" {
		return "", errors.New("prompt cannot be empty")
	}
	return prompt, nil
}

// SubscriptionKey resolves the APIM subscription key from the environment
// or the stored credentials. An empty key is left for the gateway
// configuration check to report.
func SubscriptionKey(configDir string) (string, error) {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	key, _, err := mgr.Resolve(credentials.APIM)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	return key, nil
}
