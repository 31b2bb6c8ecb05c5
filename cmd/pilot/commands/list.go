package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved model profiles",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	app, err := newApp(nil)
	if err != nil {
		return err
	}

	all := app.session.List()
	if len(all) == 0 {
		fmt.Println(styleMuted.Render("No profiles yet. Add one with 'pilot add'."))
		return nil
	}

	current, hasCurrent := app.session.Current()

	var b strings.Builder
	b.WriteString(styleTitle.Render("Model profiles"))
	b.WriteString("\n\n")
	for _, p := range all {
		marker := " "
		name := p.Nickname
		if hasCurrent && p.Nickname == current.Nickname {
			marker = styleActive.Render("*")
			name = styleActive.Render(name)
		}
		line := fmt.Sprintf(" %s %-10s %-24s %s", marker, name, p.DisplayName,
			styleMuted.Render(p.Provider+" / "+p.ModelID))
		if p.Endpoint != "" {
			line += styleMuted.Render(" @ " + p.Endpoint)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Print(b.String())
	return nil
}
