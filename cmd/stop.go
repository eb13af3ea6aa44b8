package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running probe",
	Long: `Stop the running probe gracefully.

This command sends daemon_shutdown over the control socket. The probe flushes every
device, closes its exporters and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runStop(ctx, newClient(), os.Stdout)
	},
}

func runStop(ctx context.Context, client ControlClient, w io.Writer) error {
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("probe is not running or socket is inaccessible: %w", err)
	}
	resp, err := client.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop probe: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("daemon_shutdown failed: %s", resp.Error.Message)
	}
	fmt.Fprintln(w, "✓ Probe is shutting down")
	return nil
}
