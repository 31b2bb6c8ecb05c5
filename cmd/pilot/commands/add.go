package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/pilot/internal/profiles"
)

var (
	addProviderFlag string
	addEndpointFlag string
)

var addCmd = &cobra.Command{
	Use:   "add <nickname> <model-id>",
	Short: "Add a model profile",
	Long: `Add a named model profile.

Nicknames are short handles (1-8 chars, lowercase alphanumerics and
dashes) used with 'pilot switch'. The model id may be a provider alias
(e.g. "sonnet") or a full model name.`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addProviderFlag, "provider", "p", "local", "Provider name")
	addCmd.Flags().StringVarP(&addEndpointFlag, "endpoint", "e", "", "Endpoint override for this profile")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	nickname, modelID := args[0], args[1]
	if !profiles.ValidNickname(nickname) {
		return fmt.Errorf("invalid nickname %q: must be 1-8 chars of [a-z0-9-]", nickname)
	}

	app, err := newApp(nil)
	if err != nil {
		return err
	}

	if err := app.session.Add(nickname, modelID, addProviderFlag, addEndpointFlag); err != nil {
		return err
	}

	fmt.Printf("Added %s (%s / %s)\n", styleActive.Render(nickname), addProviderFlag, modelID)
	return nil
}
