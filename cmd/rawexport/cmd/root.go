// Package cmd provides CLI command implementations
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/rawexport/internal/logger"
)

var (
	// Global flags
	logLevel   string
	logFormat  string
	configFile string

	// Loaded by the root command before any subcommand runs
	config Config
)

var rootCmd = &cobra.Command{
	Use:   "rawexport",
	Short: "rawexport - Mass-spectrometry scan exporter",
	Long: `rawexport converts per-scan measurements of an acquisition file into
portable analysis artifacts:

- a run summary (.txt) and a scan list (.csv) for every export
- the indexed binary container (.umz) with random access to peak arrays
- the .ms1/.ms2 text interchange pair
- the legacy two-block peak store (.mes)
- a SQLite scan library (.db)

Inputs are opened by file extension (currently .mzML).`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		config = cfg
		config.applyGlobal(cmd)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/rawexport/config.yaml)")
}

// newLogger builds the stderr logger selected by the global flags.
func newLogger() logger.Logger {
	return logger.ForFormat(os.Stderr, logFormat, logger.ParseLevel(logLevel))
}
