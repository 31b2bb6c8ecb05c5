package commands

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/marcus/pilot/internal/auth"
	"github.com/marcus/pilot/internal/config"
	"github.com/marcus/pilot/internal/registry"
	"github.com/marcus/pilot/internal/usage"
)

type checkStatus string

const (
	statusOK   checkStatus = "OK"
	statusWarn checkStatus = "WARN"
	statusFail checkStatus = "FAIL"
)

type checkResult struct {
	name   string
	status checkStatus
	detail string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check pilot configuration and environment",
	Long: `Run diagnostics to detect configuration and environment issues.

Checks config, the data directory, provider credentials, external
tooling, and usage ledger health.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	results := make([]checkResult, 0)
	hasFail := false

	add := func(name string, status checkStatus, detail string) {
		if status == statusFail {
			hasFail = true
		}
		results = append(results, checkResult{name: name, status: status, detail: detail})
	}

	cfg, err := config.Load()
	if err != nil {
		add("config", statusFail, err.Error())
		printDoctorResults(results)
		return fmt.Errorf("config load failed")
	}
	add("config", statusOK, "loaded")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		add("data_dir", statusFail, err.Error())
	} else {
		add("data_dir", statusOK, cfg.DataDir)
	}

	checkProfiles(cfg, add)
	checkUsageDB(cfg, add)

	reg := registry.New()
	credStore, err := auth.NewFileStore(cfg.CredentialsDir())
	if err != nil {
		add("credentials", statusFail, err.Error())
	} else {
		checkProviders(reg, credStore, add)
	}

	printDoctorResults(results)

	if hasFail {
		return fmt.Errorf("doctor found failures")
	}
	return nil
}

func checkProfiles(cfg *config.Config, add func(string, checkStatus, string)) {
	data, err := os.ReadFile(cfg.ProfilesPath())
	if errors.Is(err, os.ErrNotExist) {
		add("profiles", statusWarn, "no profiles yet (add one with 'pilot add')")
		return
	}
	if err != nil {
		add("profiles", statusFail, err.Error())
		return
	}
	add("profiles", statusOK, fmt.Sprintf("%s (%d bytes)", cfg.ProfilesPath(), len(data)))
}

func checkUsageDB(cfg *config.Config, add func(string, checkStatus, string)) {
	db, err := usage.Open(cfg.UsageDBPath())
	if err != nil {
		add("usage.db", statusFail, err.Error())
		return
	}
	defer db.Close()
	add("usage.db", statusOK, cfg.UsageDBPath())
}

// checkProviders reports auth readiness per provider: env key presence
// for static-key providers, stored credential state for OAuth ones, and
// binary availability for the subprocess family.
func checkProviders(reg *registry.Registry, credStore *auth.FileStore, add func(string, checkStatus, string)) {
	for _, name := range reg.Names() {
		desc, err := reg.Lookup(name)
		if err != nil {
			continue
		}

		switch desc.Scheme {
		case registry.AuthStaticKey:
			if os.Getenv(desc.KeyEnvVar) == "" {
				add(name+".auth", statusWarn, fmt.Sprintf("$%s not set", desc.KeyEnvVar))
			} else {
				add(name+".auth", statusOK, "$"+desc.KeyEnvVar)
			}
		case registry.AuthDeviceFlow:
			cred, err := credStore.Load(name)
			if errors.Is(err, os.ErrNotExist) {
				add(name+".auth", statusWarn, fmt.Sprintf("not authorized (run 'pilot login %s')", name))
				continue
			}
			if err != nil {
				add(name+".auth", statusFail, err.Error())
				continue
			}
			if cred.RefreshToken == "" {
				add(name+".auth", statusWarn, "stored credential has no refresh token")
			} else {
				add(name+".auth", statusOK, fmt.Sprintf("credential stored, expires %s", cred.Expiry.Format("2006-01-02 15:04")))
			}
		}

		if desc.Binary != "" {
			if path, err := exec.LookPath(desc.Binary); err != nil {
				add(name+".cli", statusFail, desc.Binary+" not found in PATH")
			} else {
				add(name+".cli", statusOK, path)
			}
		}
	}
}

func printDoctorResults(results []checkResult) {
	fmt.Println("Pilot doctor")
	fmt.Println("============")
	for _, result := range results {
		label := string(result.status)
		switch result.status {
		case statusOK:
			label = styleStatusOK.Render(label)
		case statusFail:
			label = styleStatusBad.Render(label)
		}
		fmt.Printf("[%s] %-18s %s\n", label, result.name, result.detail)
	}
	fmt.Println()
}
