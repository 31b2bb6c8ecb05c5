package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/pilot/internal/auth"
	"github.com/marcus/pilot/internal/config"
	"github.com/marcus/pilot/internal/logging"
	"github.com/marcus/pilot/internal/preserve"
	"github.com/marcus/pilot/internal/refresher"
	"github.com/marcus/pilot/internal/registry"
	"github.com/marcus/pilot/internal/watcher"
)

const pidFileName = "pilot.pid"

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background daemon",
	Long: `Start, stop, or check status of the pilot background daemon.

The daemon refreshes OAuth credentials ahead of expiry and reloads
configuration when the profile file or credential directory changes,
preserving the runtime model selection across every reload.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background daemon",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	RunE:  runDaemonStatus,
}

var daemonForegroundFlag bool

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForegroundFlag, "foreground", "f", false, "Run in foreground (don't daemonize)")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, pidFileName)
}

func writePidFile(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("creating pid dir: %w", err)
	}
	return os.WriteFile(pidFilePath(cfg), []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPidFile(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(pidFilePath(cfg))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 checks liveness.
	return process.Signal(syscall.Signal(0)) == nil
}

func isDaemonRunning(cfg *config.Config) (bool, int) {
	pid, err := readPidFile(cfg)
	if err != nil {
		return false, 0
	}
	return isProcessRunning(pid), pid
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if running, pid := isDaemonRunning(cfg); running {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	if daemonForegroundFlag {
		return runDaemonLoop(cfg)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("getting executable: %w", err)
	}

	child := exec.Command(executable, "daemon", "start", "--foreground")
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	fmt.Printf("daemon started (pid %d)\n", child.Process.Pid)
	return nil
}

func runDaemonLoop(cfg *config.Config) error {
	log := logging.Component("daemon")

	if err := writePidFile(cfg); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = os.Remove(pidFilePath(cfg)) }()

	log.Info().Msg("daemon starting")

	reg := registry.New()
	credStore, err := auth.NewFileStore(cfg.CredentialsDir())
	if err != nil {
		return err
	}
	// nil prompt: the daemon never starts an interactive device flow.
	mgr := auth.NewManager(auth.NewResolver(reg), credStore, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	ref := refresher.New(mgr)
	if err := ref.Start(); err != nil {
		return fmt.Errorf("start refresher: %w", err)
	}
	defer ref.Stop()

	// Config reloads run through the preserve bracket so an external
	// edit never reverts the runtime model selection.
	w, err := watcher.New([]string{cfg.DataDir, cfg.CredentialsDir()}, func() {
		fresh, err := preserve.RefreshConfig(cfg, config.Load)
		if err != nil {
			log.Warn().Err(err).Msg("config reload failed, keeping previous")
			return
		}
		cfg = fresh
		log.Info().Msg("configuration reloaded")
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()
	go w.Run(ctx)

	log.Info().Msg("daemon running")
	<-ctx.Done()
	log.Info().Msg("daemon stopped")
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	running, pid := isDaemonRunning(cfg)
	if !running {
		if _, err := readPidFile(cfg); err == nil {
			_ = os.Remove(pidFilePath(cfg))
			fmt.Println("daemon not running (stale pid file removed)")
			return nil
		}
		fmt.Println("daemon not running")
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	fmt.Printf("stopping daemon (pid %d)...\n", pid)

	timeout := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-timeout:
			fmt.Println("daemon did not stop, sending SIGKILL")
			_ = process.Signal(syscall.SIGKILL)
			_ = os.Remove(pidFilePath(cfg))
			return nil
		case <-tick.C:
			if !isProcessRunning(pid) {
				fmt.Println("daemon stopped")
				_ = os.Remove(pidFilePath(cfg))
				return nil
			}
		}
	}
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	running, pid := isDaemonRunning(cfg)
	if !running {
		fmt.Println("Status: not running")
		return nil
	}

	fmt.Println("Status: running")
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("PID file: %s\n", pidFilePath(cfg))
	return nil
}
