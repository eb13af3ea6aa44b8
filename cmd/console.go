package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/hsprobe/internal/command"
)

var consoleCmd = &cobra.Command{
	Use:   "console <command> [value]",
	Short: "Send a runtime console command",
	Long: `Send one console command to the running probe and print its reply.

Commands (the leading hyphen is optional and needs "--" before it):
  h, ?     help
  r <%>    selection ratio in percent
  m <n>    minimum of the selection range (decimal or 0x hex)
  M <n>    maximum of the selection range
  f <bpf>  capture filter
  t <n>    per-packet template (ts, min, lp, ls)
  I <s>    packet id export interval in seconds, 0 disables packet export
  J <s>    interface statistics interval in seconds
  K <s>    probe statistics interval in seconds

The reply is also exported as a SYNC record carrying the message id.

Examples:
  hsprobe console r 10
  hsprobe console f "udp port 53"
  hsprobe console --mid 7 -- -t ls`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mid := consoleMID
		if !cmd.Flags().Changed("mid") {
			mid = uint32(time.Now().Unix())
		}
		return runConsole(cmd.Context(), newClient(), os.Stdout, mid, args)
	},
}

var consoleMID uint32

func init() {
	consoleCmd.Flags().Uint32Var(&consoleMID, "mid", 0, "message id (default: current unix time)")
}

// consoleMessage builds a console message from command line words. The first word
// is the command with or without its hyphen; the rest is the value.
func consoleMessage(mid uint32, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing console command")
	}
	name := strings.TrimPrefix(args[0], "-")
	if len(name) != 1 {
		return "", fmt.Errorf("console command %q must be a single character", args[0])
	}
	return command.FormatConsole(mid, name[0], strings.Join(args[1:], " ")), nil
}

func runConsole(ctx context.Context, client ControlClient, w io.Writer, mid uint32, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg, err := consoleMessage(mid, args)
	if err != nil {
		return err
	}
	res, err := client.ConsoleExec(ctx, msg)
	if err != nil {
		return fmt.Errorf("console command failed: %w", err)
	}
	fmt.Fprint(w, res.Reply)
	if !strings.HasSuffix(res.Reply, "\n") {
		fmt.Fprintln(w)
	}
	if strings.HasPrefix(res.Reply, "ERROR") {
		return fmt.Errorf("probe rejected %q", msg)
	}
	return nil
}
