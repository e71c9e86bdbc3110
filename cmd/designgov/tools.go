package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

var toolsJSON bool

// toolsCmd prints the routing and classification table
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool routing and classification table",
	Long: `Print every known tool with its target server, operation kind and
whether it is destructive.

Examples:
  designgov tools
  designgov tools --json`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print JSON instead of a table")
}

func runTools(cmd *cobra.Command, _ []string) error {
	entries := toolcatalog.Entries()
	out := cmd.OutOrStdout()

	if toolsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tSERVER\tOPERATION\tDESTRUCTIVE")
	for _, e := range entries {
		destructive := ""
		if e.Destructive {
			destructive = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Tool, e.Server, e.Operation, destructive)
	}
	return w.Flush()
}
