package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/hsprobe/internal/template"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the export templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTemplates(os.Stdout)
	},
}

func runTemplates(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range template.All() {
		kind := "periodic"
		if d.PerPacket {
			kind = "packet"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.WireID(), strings.Join(d.Names, ","), kind, fieldList(d))
	}
	return tw.Flush()
}

func fieldList(d *template.Descriptor) string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
		if f.Enterprise() {
			names[i] += fmt.Sprintf("(%d/%d)", f.EnterpriseID, f.Type)
		}
	}
	return strings.Join(names, " ")
}
