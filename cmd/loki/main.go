// loki - virtualizing obfuscator for straight-line functions
// Pipeline: native function -> lift -> linear IR -> build -> bytecode image -> run
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/config"
	log "github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/storage"
	"github.com/colorfulnotion/loki/telemetry"
	"github.com/colorfulnotion/loki/vm"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type app struct {
	cfg *config.Config
	tel *telemetry.Client
}

func main() {
	a := &app{}
	if Commit == "none" {
		Commit = common.CommitHash()
	}
	var (
		configPath string
		logLevel   string
		debug      string
	)

	var rootCmd = &cobra.Command{
		Use:     "loki",
		Short:   "Virtualizing obfuscator: lift, encode and run straight-line functions",
		Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
				os.Exit(1)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if debug != "" {
				cfg.Log.Modules = debug
			}
			log.InitLogger(cfg.Log.Level)
			log.EnableModules(cfg.Log.Modules)

			tel, err := telemetry.NewClient(cmd.Context(), cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure)
			if err != nil {
				log.Warn(log.CLIMonitoring, "Telemetry disabled", "err", err)
				tel = telemetry.NewNoOpClient()
			}
			a.cfg, a.tel = cfg, tel
			log.Debug(log.CLIMonitoring, "config", "path", cfg.Path, "telemetry", tel.Enabled())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.tel == nil {
				return
			}
			if err := a.tel.Shutdown(context.Background()); err != nil {
				log.Warn(log.CLIMonitoring, "Telemetry shutdown", "err", err)
			}
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to loki.toml (default: search upward from the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, crit)")
	rootCmd.PersistentFlags().StringVar(&debug, "debug", "", "Comma separated log modules to enable, or all")

	rootCmd.AddCommand(
		a.liftCmd(),
		a.buildCmd(),
		a.runCmd(),
		a.disasmCmd(),
		a.treeCmd(),
		a.diffCmd(),
		a.histogramCmd(),
		a.debugCmd(),
		a.configCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.FindAndLoad(wd)
}

// openStore returns nil when no cache directory is configured.
func (a *app) openStore() (*storage.ArtifactStore, error) {
	if a.cfg.Output.CacheDir == "" {
		return nil, nil
	}
	return storage.NewArtifactStore(a.cfg.Output.CacheDir)
}

// fatal logs err at crit level and exits.
func fatal(msg string, err error) {
	var fe *vm.FatalError
	if errors.As(err, &fe) {
		log.Crit(log.CLIMonitoring, msg, "err", fe.Err, "step", fe.Step, "ip", fmt.Sprintf("%#x", fe.IP), "opcode", fe.Opcode)
	}
	log.Crit(log.CLIMonitoring, msg, "err", err)
}

// parseWords reads machine words in any base strconv accepts. Negative
// values wrap to their two's complement.
func parseWords(args []string) ([]uint64, error) {
	words := make([]uint64, len(args))
	for i, s := range args {
		if u, err := strconv.ParseUint(s, 0, 64); err == nil {
			words[i] = u
			continue
		}
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q) is not an integer", i, s)
		}
		words[i] = uint64(n)
	}
	return words, nil
}
