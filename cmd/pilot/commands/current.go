package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active model profile",
	RunE:  runCurrent,
}

func init() {
	rootCmd.AddCommand(currentCmd)
}

func runCurrent(cmd *cobra.Command, args []string) error {
	app, err := newApp(nil)
	if err != nil {
		return err
	}

	p, ok := app.session.Current()
	if !ok {
		fmt.Println(styleMuted.Render("No model selected. Switch with 'pilot switch <nickname>'."))
		return nil
	}

	desc, err := app.reg.Lookup(p.Provider)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", styleActive.Render(p.DisplayName), p.Nickname)
	fmt.Printf("  Provider: %s (%s)\n", p.Provider, desc.Family)
	fmt.Printf("  Model:    %s\n", desc.ResolveModel(p.ModelID))
	if p.Endpoint != "" {
		fmt.Printf("  Endpoint: %s\n", p.Endpoint)
	} else if desc.BaseEndpoint != "" {
		fmt.Printf("  Endpoint: %s\n", desc.BaseEndpoint)
	}
	if !p.LastUsed.IsZero() {
		fmt.Printf("  Last used: %s\n", p.LastUsed.Format("2006-01-02 15:04"))
	}
	return nil
}
