package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/hsprobe/internal/config"
	"firestige.xyz/hsprobe/internal/probe"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the probe, then print
the effective configuration (file values, environment overrides and defaults) as YAML.

Examples:
  hsprobe validate -c /etc/hsprobe/hsprobe.yml
  HSPROBE_EXPORT_COLLECTOR=10.0.0.5:4739 hsprobe validate -c probe.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, os.Stdout)
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	// Names of selections, hashes and templates are resolved here.
	if _, err := probe.SettingsFromConfig(cfg); err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	for i, d := range cfg.Devices {
		if _, err := probe.DeviceTemplate(d.Template); err != nil {
			return fmt.Errorf("INVALID: devices[%d].template: %w", i, err)
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.ProbeConfig{"hsprobe": cfg}); err != nil {
		return fmt.Errorf("failed to print configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "# VALID: %d device(s)\n", len(cfg.Devices))
	return nil
}
