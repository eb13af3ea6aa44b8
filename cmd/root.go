// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/hsprobe/internal/command"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hsprobe",
	Short: "hsprobe - hash-based packet selection probe",
	Long: `hsprobe captures packets from network interfaces, pcap files or local sockets,
selects a deterministic subset by hashing invariant header bytes, and exports one
IPFIX record per selected packet to a collector.

Probes that observe the same traffic with the same settings select the same packets,
so a collector can follow a packet across observation points.

Features:
  - Selection functions: IP, IP+TP, REC8, PACKET, RAW
  - Hash functions: BOB, OAAT, TWMX, HSIEH
  - IPFIX export over TCP, UDP or Kafka
  - Runtime console via Unix Domain Socket or Kafka`,
	Version:       command.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/hsprobe/hsprobe.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/hsprobe.sock",
		"probe control socket path")

	// Add subcommands
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(templatesCmd)
}

// ControlClient is the part of the control socket client the commands use.
type ControlClient interface {
	Ping(ctx context.Context) error
	ConsoleExec(ctx context.Context, message string) (*command.ConsoleExecResult, error)
	ProbeStatus(ctx context.Context) (*command.Response, error)
	DaemonStatus(ctx context.Context) (*command.Response, error)
	Shutdown(ctx context.Context) (*command.Response, error)
}

// newClient dials the probe control socket.
var newClient = func() ControlClient {
	return command.NewUDSClient(socketPath, 10*time.Second)
}
