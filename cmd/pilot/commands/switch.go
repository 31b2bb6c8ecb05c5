package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:   "switch <nickname>",
	Short: "Switch the active model profile",
	Long: `Switch the active model to a saved profile.

The backend is validated before the switch takes effect: credentials are
checked (and refreshed if needed) and external tooling is preflighted.
A failed switch leaves the current selection untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

func runSwitch(cmd *cobra.Command, args []string) error {
	app, err := newApp(terminalPrompt)
	if err != nil {
		return err
	}

	result, err := app.session.Switch(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Switched to %s (%s)\n",
		styleActive.Render(result.DisplayName), result.Provider)
	return nil
}
