// Package tracecmder provides the trace command, which runs the probe with
// gateway tracing enabled through short-lived debug credentials.
package tracecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	runcmder "github.com/papercomputeco/tokenprobe/cmd/tokenprobe/run"
	"github.com/papercomputeco/tokenprobe/pkg/cliui"
	"github.com/papercomputeco/tokenprobe/pkg/config"
	"github.com/papercomputeco/tokenprobe/pkg/debugcreds"
	"github.com/papercomputeco/tokenprobe/pkg/gateway"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
	"github.com/papercomputeco/tokenprobe/pkg/probe"
	"github.com/papercomputeco/tokenprobe/pkg/report"
	"github.com/papercomputeco/tokenprobe/pkg/tokencount"
)

const (
	defaultSystemPrompt = "You are a sarcastic, unhelpful assistant."
	defaultPrompt       = "Can you tell me the time, please?"
)

const traceLongDesc string = `Run the probe with API Management tracing enabled.

Debug credentials are requested through the az CLI: the gateway service id
and URL are read from the outputs of the ARM deployment that created the
gateway, and a one hour tracing token is requested from the management
plane. The chat completion is then sent with the Apim-Debug-Authorization
header, and the report adds a debugging table, a streaming timeline and the
prompt/completion token distribution.

Requires a logged in az CLI. The deployment is read from --resource-group
and --arm-deployment or from RESOURCE_GROUP_NAME and APIM_DEPLOYMENT_NAME.

Examples:
  tokenprobe trace --resource-group rg-apim --arm-deployment apim-demo
  tokenprobe trace --openai-deployment gpt-4o-mini -m gpt-4o-mini
  tokenprobe trace -p "Why is the sky blue?" --json`

const traceShortDesc string = "Run the probe with gateway tracing enabled"

// traceFlags are the registry flags the trace command binds to viper.
var traceFlags = []string{
	config.FlagClientName,
	config.FlagMaxTokens,
	config.FlagTemperature,
	config.FlagTopP,
	config.FlagFrequencyPenalty,
	config.FlagPresencePenalty,
	config.FlagTokenModel,
	config.FlagResourceGroup,
	config.FlagARMDeployment,
	config.FlagOpenAIDeployment,
	config.FlagOpenAIAPIVersion,
}

type traceCommander struct {
	flagValues config.Config

	system   string
	prompt   string
	raw      string
	json     bool
	payloads bool

	cfg       *config.Config
	configDir string

	credsOpts []debugcreds.Option
}

func NewTraceCmd() *cobra.Command {
	return newTraceCmd()
}

func newTraceCmd(credsOpts ...debugcreds.Option) *cobra.Command {
	cmder := &traceCommander{credsOpts: credsOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: traceShortDesc,
		Long:  traceLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, traceFlags)
			cmder.cfg = config.FromViper(v)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	fv := &cmder.flagValues
	config.AddStringFlag(cmd, config.Flags, config.FlagClientName, &fv.Gateway.ClientName)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxTokens, &fv.Request.MaxTokens)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTemperature, &fv.Request.Temperature)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTopP, &fv.Request.TopP)
	config.AddFloatFlag(cmd, config.Flags, config.FlagFrequencyPenalty, &fv.Request.FrequencyPenalty)
	config.AddFloatFlag(cmd, config.Flags, config.FlagPresencePenalty, &fv.Request.PresencePenalty)
	config.AddStringFlag(cmd, config.Flags, config.FlagTokenModel, &fv.Tokens.Model)
	config.AddStringFlag(cmd, config.Flags, config.FlagResourceGroup, &fv.Trace.ResourceGroup)
	config.AddStringFlag(cmd, config.Flags, config.FlagARMDeployment, &fv.Trace.ARMDeployment)
	config.AddStringFlag(cmd, config.Flags, config.FlagOpenAIDeployment, &fv.Trace.OpenAIDeployment)
	config.AddStringFlag(cmd, config.Flags, config.FlagOpenAIAPIVersion, &fv.Trace.OpenAIAPIVersion)

	cmd.Flags().StringVarP(&cmder.system, "system", "s", defaultSystemPrompt, "System prompt")
	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", defaultPrompt, "Question to ask")
	cmd.Flags().StringVar(&cmder.raw, "raw", "", "Write the raw event stream to this file")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&cmder.payloads, "payloads", false, "Include the raw chunk payloads in the report")

	return cmd
}

func (c *traceCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)

	deployment := debugcreds.Deployment{
		ResourceGroup: c.cfg.Trace.ResourceGroup,
		Name:          c.cfg.Trace.ARMDeployment,
	}
	if deployment.ResourceGroup == "" {
		return &gateway.ConfigurationError{Field: "resource group", Reason: "is required"}
	}
	if deployment.Name == "" {
		return &gateway.ConfigurationError{Field: "arm deployment", Reason: "is required"}
	}

	key, err := runcmder.SubscriptionKey(c.configDir)
	if err != nil {
		return err
	}
	if key == "" {
		return &gateway.ConfigurationError{Field: "subscription key", Reason: "missing"}
	}
	if _, err := tokencount.Resolve(c.cfg.Tokens.Model); err != nil {
		return fmt.Errorf("token model %q: %w", c.cfg.Tokens.Model, err)
	}

	creds, err := c.acquire(ctx, cmd, deployment)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !c.json {
		fmt.Fprintf(out, "\n  %s %s\n  %s %s\n",
			cliui.KeyStyle.Render("APIM Service ID:"), cliui.ValueStyle.Render(creds.ServiceID),
			cliui.KeyStyle.Render("API Gateway URL:"), cliui.ValueStyle.Render(creds.GatewayURL),
		)
	}

	cfg := *c.cfg
	cfg.Gateway.URL = creds.GatewayURL
	cfg.Gateway.Deployment = cfg.Trace.OpenAIDeployment
	cfg.Gateway.APIVersion = cfg.Trace.OpenAIAPIVersion

	session := &runcmder.Session{
		Config:             &cfg,
		Messages:           probe.Messages(c.system, c.prompt),
		SubscriptionKey:    key,
		DebugAuthorization: creds.Token,
		Trace: &report.DebugInfo{
			ServiceID:          creds.ServiceID,
			GatewayURL:         creds.GatewayURL,
			SubscriptionKeySet: true,
		},
		RawPath:   c.raw,
		JSON:      c.json,
		Payloads:  c.payloads,
		ConfigDir: c.configDir,
		Out:       out,
		Logger:    log,
	}

	return session.Execute(ctx)
}

func (c *traceCommander) acquire(ctx context.Context, cmd *cobra.Command, d debugcreds.Deployment) (*debugcreds.Credentials, error) {
	client := debugcreds.New(append([]debugcreds.Option{
		debugcreds.WithLogger(logger.FromContext(ctx)),
	}, c.credsOpts...)...)

	var creds *debugcreds.Credentials
	err := cliui.Step(cmd.ErrOrStderr(), "Acquiring debug credentials", func() error {
		var err error
		creds, err = client.Acquire(ctx, d)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("acquiring debug credentials: %w", err)
	}

	return creds, nil
}
