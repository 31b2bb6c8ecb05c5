package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/pilot/internal/config"
	"github.com/marcus/pilot/internal/usage"
)

var usageSinceFlag time.Duration

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded token usage",
	Long: `Show token usage recorded in the local ledger, total and per
provider. Counts derived from text length (backends that report no
usage metadata) are marked estimated.`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().DurationVar(&usageSinceFlag, "since", 30*24*time.Hour, "Window to summarize (e.g. 24h, 168h)")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := usage.Open(cfg.UsageDBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	since := time.Now().Add(-usageSinceFlag)
	total, err := db.Summarize(since)
	if err != nil {
		return err
	}
	perProvider, err := db.ByProvider(since)
	if err != nil {
		return err
	}

	fmt.Println(styleTitle.Render(fmt.Sprintf("Token usage (last %s)", usageSinceFlag)))
	fmt.Println()

	if total.Requests == 0 {
		fmt.Println(styleMuted.Render("No usage recorded in this window."))
		return nil
	}

	providers := make([]string, 0, len(perProvider))
	for name := range perProvider {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	for _, name := range providers {
		s := perProvider[name]
		fmt.Printf("  %-12s %4d requests  %s in / %s out%s\n",
			name, s.Requests, formatTokens(s.InputTokens), formatTokens(s.OutputTokens),
			estimatedNote(s))
	}
	fmt.Println()
	fmt.Printf("  %-12s %4d requests  %s in / %s out%s\n",
		styleActive.Render("total"), total.Requests,
		formatTokens(total.InputTokens), formatTokens(total.OutputTokens),
		estimatedNote(total))
	return nil
}

func estimatedNote(s usage.Summary) string {
	if s.Estimated == 0 {
		return ""
	}
	return styleMuted.Render(fmt.Sprintf("  (%d estimated)", s.Estimated))
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
