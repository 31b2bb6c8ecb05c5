package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/pilot/internal/canon"
	"github.com/marcus/pilot/internal/logging"
	"github.com/marcus/pilot/internal/usage"
)

var (
	askSystemFlag    string
	askMaxTokensFlag int
	askNoStreamFlag  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt...>",
	Short: "Send a one-shot prompt to the active model",
	Long: `Send a single prompt through the active model profile and print the
response. Streams by default; token usage is recorded in the local
ledger either way.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSystemFlag, "system", "s", "", "System prompt")
	askCmd.Flags().IntVar(&askMaxTokensFlag, "max-tokens", 0, "Max output tokens (0 = backend default)")
	askCmd.Flags().BoolVar(&askNoStreamFlag, "no-stream", false, "Wait for the full response instead of streaming")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := newApp(terminalPrompt)
	if err != nil {
		return err
	}

	profile, ok := app.session.Current()
	if !ok {
		return fmt.Errorf("no model selected; switch with 'pilot switch <nickname>'")
	}

	endpoint := profile.Endpoint
	if endpoint == "" {
		endpoint = app.cfg.EndpointOverride(profile.Provider)
	}
	client, err := app.factory.Build(cmd.Context(), profile.Provider, profile.ModelID, endpoint)
	if err != nil {
		return err
	}

	desc, err := app.reg.Lookup(profile.Provider)
	if err != nil {
		return err
	}

	maxTokens := askMaxTokensFlag
	if maxTokens == 0 {
		maxTokens = app.cfg.DefaultMaxTokens
	}

	req := canon.Request{
		Model:     desc.ResolveModel(profile.ModelID),
		MaxTokens: maxTokens,
	}
	if askSystemFlag != "" {
		req.Messages = append(req.Messages, canon.Message{Role: canon.RoleSystem, Content: askSystemFlag})
	}
	req.Messages = append(req.Messages, canon.Message{Role: canon.RoleUser, Content: strings.Join(args, " ")})

	var used canon.Usage
	if askNoStreamFlag {
		resp, err := client.Send(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Println(resp.Message.Content)
		used = resp.Usage
	} else {
		req.Stream = true
		stream, err := client.Stream(cmd.Context(), req)
		if err != nil {
			return err
		}
		defer stream.Close()

		for {
			chunk, ok := stream.Next()
			if !ok {
				break
			}
			if chunk.Delta != "" {
				fmt.Print(chunk.Delta)
			}
			if chunk.Terminal && chunk.Usage != nil {
				used = *chunk.Usage
			}
		}
		fmt.Println()
		if err := stream.Err(); err != nil {
			return err
		}
	}

	recordAskUsage(app, profile.Provider, req.Model, used)
	if used.InputTokens+used.OutputTokens > 0 {
		est := ""
		if used.Estimated {
			est = " (estimated)"
		}
		fmt.Fprintln(os.Stderr, styleMuted.Render(
			fmt.Sprintf("%d in / %d out tokens%s", used.InputTokens, used.OutputTokens, est)))
	}
	return nil
}

// recordAskUsage appends to the ledger; failures are logged, never
// surfaced, so accounting problems cannot break a working request.
func recordAskUsage(app *app, provider, model string, u canon.Usage) {
	db, err := usage.Open(app.cfg.UsageDBPath())
	if err != nil {
		logging.Component("ask").Warn().Err(err).Msg("usage ledger unavailable")
		return
	}
	defer db.Close()
	if err := db.RecordUsage(provider, model, u); err != nil {
		logging.Component("ask").Warn().Err(err).Msg("recording usage")
	}
}
