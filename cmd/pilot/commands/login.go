package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var loginPlainFlag bool

var loginCmd = &cobra.Command{
	Use:   "login <provider>",
	Short: "Authorize an OAuth provider via device flow",
	Long: `Run the OAuth device-authorization flow for a provider and store the
resulting credential.

Displays a verification URL and a short user code; open the URL in any
browser, enter the code, and pilot picks up the token automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginPlainFlag, "plain", false, "Plain output without the interactive display")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	provider := args[0]

	if loginPlainFlag {
		app, err := newApp(terminalPrompt)
		if err != nil {
			return err
		}
		if _, err := app.creds.Login(cmd.Context(), provider); err != nil {
			return err
		}
		fmt.Printf("Authorized %s\n", provider)
		return nil
	}

	model, err := newLoginModel(cmd.Context(), provider)
	if err != nil {
		return err
	}
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return err
	}
	if model.err != nil {
		return model.err
	}
	return nil
}

type verificationMsg struct {
	url  string
	code string
}

type loginDoneMsg struct {
	err error
}

type loginModel struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider string
	app      *app

	spinner spinner.Model
	events  chan tea.Msg

	url  string
	code string
	done bool
	err  error
}

func newLoginModel(ctx context.Context, provider string) (*loginModel, error) {
	m := &loginModel{
		provider: provider,
		events:   make(chan tea.Msg, 1),
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	// The prompt callback fires from the device-flow goroutine; it feeds
	// the verification step back into the event loop.
	app, err := newApp(func(url, code string) {
		m.events <- verificationMsg{url: url, code: code}
	})
	if err != nil {
		return nil, err
	}
	m.app = app

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	m.spinner = spin
	return m, nil
}

func (m *loginModel) Init() tea.Cmd {
	return tea.Batch(spinner.Tick, m.startLogin(), m.waitEvent())
}

func (m *loginModel) startLogin() tea.Cmd {
	return func() tea.Msg {
		_, err := m.app.creds.Login(m.ctx, m.provider)
		return loginDoneMsg{err: err}
	}
}

func (m *loginModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit
		}
	case verificationMsg:
		m.url = msg.url
		m.code = msg.code
		return m, tea.Batch(cmd, m.waitEvent())
	case loginDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}

	return m, cmd
}

func (m *loginModel) View() string {
	s := styleTitle.Render("Pilot login: "+m.provider) + "\n\n"

	switch {
	case m.done && m.err != nil:
		s += styleStatusBad.Render("Authorization failed") + "\n"
		s += m.err.Error() + "\n"
	case m.done:
		s += styleStatusOK.Render("Authorized") + "\n"
		s += "Credential stored. You can now switch to " + m.provider + " models.\n"
	case m.url != "":
		s += "Open this URL in a browser:\n\n"
		s += "  " + styleActive.Render(m.url) + "\n\n"
		s += "and enter the code:\n\n"
		s += "  " + styleTitle.Render(m.code) + "\n\n"
		s += m.spinner.View() + " waiting for authorization " + styleMuted.Render("(q to cancel)") + "\n"
	default:
		s += m.spinner.View() + " requesting device authorization...\n"
	}
	return s
}
