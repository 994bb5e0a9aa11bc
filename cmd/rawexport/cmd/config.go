package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config represents the rawexport configuration file
// (~/.config/rawexport/config.yaml). Values apply only to flags that were not
// set on the command line.
type Config struct {
	Format        string `yaml:"format"`
	OutputDir     string `yaml:"output_dir"`
	FieldLabels   string `yaml:"field_labels"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	ProgressEvery *int   `yaml:"progress_every"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rawexport", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when path
// is empty. A missing default file yields a zero Config; a missing explicit
// file is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyGlobal applies config file defaults to the global flags.
func (c Config) applyGlobal(cmd *cobra.Command) {
	if c.LogLevel != "" && !cmd.Flags().Changed("log-level") {
		logLevel = c.LogLevel
	}
	if c.LogFormat != "" && !cmd.Flags().Changed("log-format") {
		logFormat = c.LogFormat
	}
}

// applyExport applies config file defaults to the export command flags.
func (c Config) applyExport(cmd *cobra.Command) {
	if c.Format != "" && !cmd.Flags().Changed("format") {
		formatToken = c.Format
	}
	if c.OutputDir != "" && !cmd.Flags().Changed("out") {
		outputDir = c.OutputDir
	}
	if c.FieldLabels != "" && !cmd.Flags().Changed("field-labels") {
		fieldLabelsCSV = c.FieldLabels
	}
	if c.ProgressEvery != nil && !cmd.Flags().Changed("progress-every") {
		progressEvery = *c.ProgressEvery
	}
}
