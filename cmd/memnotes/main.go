// Package main implements the memnotes command: the web server plus the
// offline maintenance commands for the reference bank and legacy stores.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/config"
	"github.com/conorfennell/memnotes/internal/logging"
)

var (
	configFile string
	envFile    string
	version    = "dev"
)

// flagKeys maps command-line flags onto configuration keys. Flags override
// every other source when set.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "server.metrics_addr",
	"data-dir":     "storage.data_dir",
	"bank":         "bank.path",
	"repos-dir":    "bank.repos_dir",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memnotes",
	Short: "Personal notes and multiple-choice flashcards",
	Long: `memnotes serves a note-taking and self-testing web application.

Configuration is read from defaults, a YAML file, MEMNOTES_* environment
variables and flags, in increasing order of precedence.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML configuration file (default memnotes.yaml when present)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment when present")
	pf.String("bank", "", "path to the reference bank database")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: json or console")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bankCmd)
	rootCmd.AddCommand(migrateCmd)
}

// setup loads the configuration for cmd and builds the logger.
func setup(cmd *cobra.Command, serve bool) (*config.Config, *zap.Logger, error) {
	file := configFile
	if file == "" {
		if _, err := os.Stat("memnotes.yaml"); err == nil {
			file = "memnotes.yaml"
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
	}
	cfg, err := config.Load(config.Options{
		ConfigFile: file,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
		FlagKeys:   flagKeys,
		Serve:      serve,
	})
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
