// Package authcmder provides the auth command for storing the gateway
// subscription key.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/tokenprobe/pkg/cliui"
	"github.com/papercomputeco/tokenprobe/pkg/credentials"
)

const authLongDesc string = `Store the API Management subscription key.

Credentials are stored in credentials.toml in the .tokenprobe/ directory with
0600 permissions. The APIM_SUBSCRIPTION_KEY environment variable takes
precedence over the stored key.

Supported providers: apim

Examples:
  tokenprobe auth apim              Prompt for the subscription key
  tokenprobe auth --list            List stored credentials
  tokenprobe auth --remove apim     Remove the stored key
  echo $KEY | tokenprobe auth apim  Pipe the key from stdin`

const authShortDesc string = "Store the gateway subscription key"

type authCommander struct {
	in  io.Reader
	out io.Writer

	configDir string
}

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder := &authCommander{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			switch {
			case listFlag:
				return cmder.runList()
			case removeFlag != "":
				return cmder.runRemove(removeFlag)
			default:
				if len(args) == 0 {
					return fmt.Errorf("provider argument required\n\nSupported providers: %s",
						strings.Join(credentials.SupportedProviders(), ", "))
				}
				return cmder.runAuth(args[0])
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove stored credentials for a provider")

	return cmd
}

func (c *authCommander) runAuth(provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s",
			provider, strings.Join(credentials.SupportedProviders(), ", "))
	}

	key, err := c.readKey(provider)
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("subscription key cannot be empty")
	}

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetKey(provider, key); err != nil {
		return err
	}

	envVar := credentials.EnvVarForProvider(provider)
	fmt.Fprintf(c.out, "\n  %s Stored %s credentials %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(provider),
		cliui.DimStyle.Render("("+envVar+" overrides it when set)"),
	)
	if os.Getenv(envVar) != "" {
		fmt.Fprintf(c.out, "  %s %s is set in this shell and takes precedence.\n",
			cliui.WarnMark, envVar)
	}

	fmt.Fprintln(c.out)
	return nil
}

func (c *authCommander) runList() error {
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	providers, err := mgr.ListProviders()
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		fmt.Fprintf(c.out, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(c.out, "  Use 'tokenprobe auth <provider>' to store credentials.\n")
		fmt.Fprintf(c.out, "  Supported providers: %s\n\n", strings.Join(credentials.SupportedProviders(), ", "))
		return nil
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, p := range providers {
		envVar := credentials.EnvVarForProvider(p)
		if envVar != "" {
			fmt.Fprintf(c.out, "  %s  %s  %s\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(p),
				cliui.DimStyle.Render("→ "+envVar),
			)
		} else {
			fmt.Fprintf(c.out, "  %s  %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(p))
		}
	}
	fmt.Fprintln(c.out)

	return nil
}

func (c *authCommander) runRemove(provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(provider); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.ValueStyle.Render(provider))

	return nil
}

// readKey reads the key from the command input. Piped input is read as its
// first line; a terminal gets a prompt with hidden input.
func (c *authCommander) readKey(provider string) (string, error) {
	if f, ok := c.in.(*os.File); ok && cliui.IsTerminal(f) {
		envVar := credentials.EnvVarForProvider(provider)
		fmt.Fprintf(c.out, "Enter subscription key for %s (%s): ", provider, envVar)

		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading subscription key: %w", err)
		}
		return string(keyBytes), nil
	}

	scanner := bufio.NewScanner(c.in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
