package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/hsprobe/internal/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the probe in foreground",
	Long: `Run the probe in foreground.

The probe will:
  1. Load the configuration file
  2. Open every configured device and its IPFIX exporter
  3. Start the control socket and the Kafka console (if configured)
  4. Select and export packets until stopped
  5. Handle SIGTERM/SIGINT for graceful shutdown and SIGHUP for log reload

A probe whose devices are all pcap files stops by itself once they are read.

Examples:
  hsprobe start -c /etc/hsprobe/hsprobe.yml
  hsprobe start -c probe.yml -s /tmp/hsprobe.sock -p /tmp/hsprobe.pid`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

var pidFile string

func init() {
	startCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (default: control.pid_file)")
}

func runDaemon() error {
	// An unchanged --socket falls back to control.socket of the file.
	socket := ""
	if rootCmd.PersistentFlags().Changed("socket") {
		socket = socketPath
	}

	d, err := daemon.New(configFile, socket, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create probe: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start probe: %w", err)
	}
	return d.Run()
}
