package cmd

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/hsprobe/internal/ipfix"
	"firestige.xyz/hsprobe/internal/template"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a debug IPFIX collector",
	Long: `Listen for IPFIX messages and print every decoded record.

Examples:
  hsprobe collect                          # tcp on :4739
  hsprobe collect --network udp --listen 127.0.0.1:4739`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runCollect(ctx, collectNetwork, collectListen, os.Stdout)
	},
}

var (
	collectNetwork string
	collectListen  string
)

func init() {
	collectCmd.Flags().StringVar(&collectNetwork, "network", "tcp", "tcp or udp")
	collectCmd.Flags().StringVar(&collectListen, "listen", ":4739", "listen address")
}

func runCollect(ctx context.Context, network, addr string, w io.Writer) error {
	var mu sync.Mutex
	c, err := ipfix.Listen(network, addr, func(from net.Addr, m *ipfix.Message) {
		mu.Lock()
		defer mu.Unlock()
		printMessage(w, from, m)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "collecting IPFIX on %s/%s\n", network, c.Addr())
	return c.Run(ctx)
}

func printMessage(w io.Writer, from net.Addr, m *ipfix.Message) {
	h := m.Header
	fmt.Fprintf(w, "message from=%s domain=%d seq=%d export_time=%d templates=%d records=%d",
		from, h.DomainID, h.Sequence, h.ExportTime, len(m.Templates), len(m.Records))
	if m.Skipped > 0 {
		fmt.Fprintf(w, " skipped_sets=%d", m.Skipped)
	}
	fmt.Fprintln(w)

	for _, rec := range m.Records {
		desc, ok := template.ByWireID(rec.TemplateID)
		if !ok {
			fmt.Fprintf(w, "  template %d: %d fields\n", rec.TemplateID, len(rec.Values))
			continue
		}
		parts := make([]string, 0, len(rec.Values))
		for i, v := range rec.Values {
			if i < len(desc.Fields) {
				parts = append(parts, desc.Fields[i].Name+"="+formatValue(desc.Fields[i], v))
			}
		}
		fmt.Fprintf(w, "  %s: %s\n", desc.Name(), strings.Join(parts, " "))
	}
}

// formatValue renders a field value by its information element.
func formatValue(f template.Field, v []byte) string {
	switch {
	case f.Variable():
		return fmt.Sprintf("%q", v)
	case f == template.SourceIPv4Address || f == template.DestinationIPv4Address:
		if len(v) == 4 {
			return net.IP(v).String()
		}
	}
	switch len(v) {
	case 1:
		return fmt.Sprint(v[0])
	case 2:
		return fmt.Sprint(binary.BigEndian.Uint16(v))
	case 4:
		if f == template.DigestHashValue {
			return fmt.Sprintf("%#08x", binary.BigEndian.Uint32(v))
		}
		return fmt.Sprint(binary.BigEndian.Uint32(v))
	case 8:
		return fmt.Sprint(binary.BigEndian.Uint64(v))
	}
	return hex.EncodeToString(v)
}
