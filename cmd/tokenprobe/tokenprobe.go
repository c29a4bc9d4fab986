// Package tokenprobecmder
package tokenprobecmder

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/tokenprobe/cmd/tokenprobe/auth"
	configcmder "github.com/papercomputeco/tokenprobe/cmd/tokenprobe/config"
	lastcmder "github.com/papercomputeco/tokenprobe/cmd/tokenprobe/last"
	runcmder "github.com/papercomputeco/tokenprobe/cmd/tokenprobe/run"
	tracecmder "github.com/papercomputeco/tokenprobe/cmd/tokenprobe/trace"
	versioncmder "github.com/papercomputeco/tokenprobe/cmd/version"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
)

const tokenprobeLongDesc string = `tokenprobe checks token accounting of streamed chat completions.

It sends one streaming chat completion request through an API Management
gateway, counts the prompt and reply tokens locally and compares them with
the usage the gateway reports at the end of the stream.

  tokenprobe run      Ask a question and reconcile token usage
  tokenprobe trace    Same, with gateway tracing enabled
  tokenprobe last     Print the report of the most recent run`

const tokenprobeShortDesc string = "tokenprobe - streamed token usage reconciliation"

type rootCommander struct {
	debug    bool
	jsonLogs bool
	logFile  string

	closeLog func() error
}

func NewTokenprobeCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "tokenprobe",
		Short:         tokenprobeShortDesc,
		Long:          tokenprobeLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := cmder.newLogger()
			if err != nil {
				return err
			}
			cmd.SetContext(logger.NewContext(cmd.Context(), l))
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if cmder.closeLog != nil {
				return cmder.closeLog()
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&cmder.debug, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write logs as JSON")
	cmd.PersistentFlags().StringVar(&cmder.logFile, "log-file", "", "Also append debug-level JSON logs to this file")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .tokenprobe/ config directory")

	// Add subcommands
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(tracecmder.NewTraceCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(lastcmder.NewLastCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// newLogger builds the stderr logger. With --log-file every record, debug
// included, is also appended to the file as JSON.
func (c *rootCommander) newLogger() (*slog.Logger, error) {
	opts := []logger.Option{
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
	}

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		c.closeLog = f.Close
		opts = append(opts, logger.WithLogFile(f))
	}

	return logger.New(opts...), nil
}
