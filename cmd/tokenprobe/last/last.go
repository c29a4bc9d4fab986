// Package lastcmder provides the last command, which prints the JSON report
// of the most recent run.
package lastcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tokenprobe/pkg/cliui"
	"github.com/papercomputeco/tokenprobe/pkg/dotdir"
)

const lastLongDesc string = `Print the JSON report of the most recent run or trace.

Every run stores its report as last_run.json in the .tokenprobe/ directory,
replacing the previous one. Use --clear to remove it.

Examples:
  tokenprobe last
  tokenprobe last | jq .completion_tokens
  tokenprobe last --clear`

const lastShortDesc string = "Print the report of the most recent run"

func NewLastCmd() *cobra.Command {
	var clearFlag bool

	cmd := &cobra.Command{
		Use:   "last",
		Short: lastShortDesc,
		Long:  lastLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			manager := dotdir.NewManager()
			out := cmd.OutOrStdout()

			if clearFlag {
				if err := manager.ClearLastRun(configDir); err != nil {
					return err
				}
				fmt.Fprintf(out, "\n  %s Cleared the last run report.\n\n", cliui.SuccessMark)
				return nil
			}

			data, err := manager.LoadLastRun(configDir)
			if err != nil {
				return err
			}
			if data == nil {
				fmt.Fprintf(out, "\n  %s No run recorded yet. Use 'tokenprobe run' first.\n\n", cliui.DimStyle.Render("●"))
				return nil
			}

			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&clearFlag, "clear", false, "Remove the stored report")

	return cmd
}
