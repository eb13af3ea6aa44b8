package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/hsprobe/internal/command"
	"firestige.xyz/hsprobe/internal/probe"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show probe settings and device counters",
	Long: `Query the running probe for its runtime settings and per-device counters.

Examples:
  hsprobe status
  hsprobe status --json
  hsprobe status --daemon     # version and uptime only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if statusDaemon {
			return runDaemonStatus(ctx, newClient(), os.Stdout)
		}
		return runStatus(ctx, newClient(), os.Stdout, statusJSON)
	},
}

var (
	statusJSON   bool
	statusDaemon bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON status")
	statusCmd.Flags().BoolVar(&statusDaemon, "daemon", false, "show daemon version and uptime")
}

func runStatus(ctx context.Context, client ControlClient, w io.Writer, asJSON bool) error {
	resp, err := client.ProbeStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query probe status: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("probe_status failed: %s", resp.Error.Message)
	}
	if asJSON {
		return printJSON(w, resp.Result)
	}

	var st probe.Status
	if err := resp.DecodeResult(&st); err != nil {
		return err
	}
	fmt.Fprintf(w, "selection: %s  hash: %s", st.Selection, st.Hash)
	if st.PacketIDHash != "" {
		fmt.Fprintf(w, "  packet id hash: %s", st.PacketIDHash)
	}
	fmt.Fprintf(w, "\nrange:     [%#08x, %#08x]  ratio: %.4f%%\n", st.RangeMin, st.RangeMax, st.Ratio)
	fmt.Fprintf(w, "template:  %s  filter: %q  flush threshold: %d\n\n", st.Template, st.Filter, st.FlushThreshold)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tKIND\tADDRESS\tTEMPLATE\tTOTAL\tSAMPLED\tNO SELECTION\tEXPORTED\tERRORS")
	for _, d := range st.Devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			d.Name, d.Kind, d.Address, d.Template, d.Total, d.Sampled, d.NoSelection, d.Exported, d.ExportErrors)
	}
	return tw.Flush()
}

func runDaemonStatus(ctx context.Context, client ControlClient, w io.Writer) error {
	resp, err := client.DaemonStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query daemon status: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("daemon_status failed: %s", resp.Error.Message)
	}
	return printJSON(w, resp.Result)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// compile-time check
var _ ControlClient = (*command.UDSClient)(nil)
