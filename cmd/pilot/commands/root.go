// Package commands implements the pilot CLI commands using cobra.
package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/marcus/pilot/internal/auth"
	"github.com/marcus/pilot/internal/config"
	"github.com/marcus/pilot/internal/factory"
	"github.com/marcus/pilot/internal/logging"
	"github.com/marcus/pilot/internal/profiles"
	"github.com/marcus/pilot/internal/registry"
	"github.com/marcus/pilot/internal/session"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "Model routing and session state for coding-assistant backends",
	Long: `Pilot routes coding-assistant requests to OpenAI-compatible servers,
cloud providers with OAuth device-flow auth, or an external agent CLI,
and keeps your runtime model choice stable across credential refreshes.

Add model profiles with 'pilot add', then switch between them with
'pilot switch <nickname>'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if verboseFlag {
			level = "debug"
		}
		return logging.Init(logging.Config{
			Level:  level,
			Path:   cfg.LogDir(),
			Format: cfg.LogFormat,
		})
	},
}

// Execute runs the root command
func Execute() {
	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable verbose output")
}

// app wires the full routing stack for one command invocation.
type app struct {
	cfg      *config.Config
	reg      *registry.Registry
	profiles *profiles.Store
	creds    *auth.Manager
	factory  *factory.Factory
	session  *session.Service
}

// newApp builds the stack. prompt is nil for non-interactive commands,
// which makes a missing OAuth credential an error instead of starting a
// device flow mid-command.
func newApp(prompt auth.PromptFunc) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	reg := registry.New()

	store, err := profiles.NewStore(cfg.ProfilesPath())
	if err != nil {
		return nil, err
	}
	credStore, err := auth.NewFileStore(cfg.CredentialsDir())
	if err != nil {
		return nil, err
	}

	mgr := auth.NewManager(auth.NewResolver(reg), credStore, prompt)
	f := factory.New(reg, mgr)

	return &app{
		cfg:      cfg,
		reg:      reg,
		profiles: store,
		creds:    mgr,
		factory:  f,
		session:  session.New(cfg, store, reg, f),
	}, nil
}

// terminalPrompt displays the device-flow verification step for plain
// (non-TUI) commands.
func terminalPrompt(verificationURL, userCode string) {
	fmt.Printf("\nOpen %s\nand enter the code: %s\n\n", verificationURL, userCode)
}

// Shared output styles.
var (
	styleTitle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"})
	styleActive    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"})
	styleMuted     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"})
	styleStatusOK  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"})
	styleStatusBad = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"})
)
