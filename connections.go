package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var connectionsJSON bool

var connectionsCmd = &cobra.Command{
	Use:   "connections [entry]",
	Short: "List the Jolokia connections found from the configuration",
	Long: `List the Jolokia connections found from the configuration.

Static entries produce one connection each. aws_tagged entries produce one
connection per tagged resource, named <entry>/<resource-id>.

Examples:
  jmx-conf-gen connections --config config.yaml
  jmx-conf-gen connections prod --config config.yaml --json
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConnections,
}

func init() {
	rootCmd.AddCommand(connectionsCmd)

	connectionsCmd.Flags().BoolVar(&connectionsJSON, "json", false, "Output as JSON")
}

func runConnections(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var entry string
	if len(args) > 0 {
		entry = args[0]
		if _, ok := a.cfg.Connection(entry); !ok {
			return fmt.Errorf("connection entry '%s' not found in config", entry)
		}
	}

	conns, err := a.discover(ctx, entry)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if connectionsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(conns)
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Connections (%d)", len(conns))))
	for _, conn := range conns {
		fmt.Fprintf(out, "  %s %s\n", mbeanStyle.Render(conn.Name), conn.URL)
		if len(conn.Tags) > 0 {
			keys := make([]string, 0, len(conn.Tags))
			for k := range conn.Tags {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, k+"="+conn.Tags[k])
			}
			fmt.Fprintln(out, "    "+dimStyle.Render(strings.Join(pairs, ", ")))
		}
	}
	return nil
}
