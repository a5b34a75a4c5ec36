package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/moepig/jmx-conf-gen/config"
	"github.com/moepig/jmx-conf-gen/mbean"
	"github.com/moepig/jmx-conf-gen/query"
	"github.com/moepig/jmx-conf-gen/renderer"
	"github.com/moepig/jmx-conf-gen/resources"
)

var generateDryRun bool

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render the configured output files from discovered MBeans",
	Long: `Render the configured output files from discovered MBeans.

For every output the MBean trees of all connections of the referenced entry
are refreshed, narrowed by the optional domain and filter, and passed to the
template. Template paths are relative to the configuration file. Outputs
with a check section are built as a JMX check file without a template.

Examples:
  jmx-conf-gen generate --config config.yaml
  jmx-conf-gen generate --config config.yaml --dry-run
`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "Print rendered files instead of writing them")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Outputs) == 0 {
		slog.Warn("No outputs configured", "config_path", configPath)
		return nil
	}

	// Discover connections once per referenced entry
	slog.Info("Discovering connections")
	connMap := make(map[string][]resources.Connection)
	for _, outCfg := range a.cfg.Outputs {
		entry := outCfg.Data.ConnectionName
		if _, ok := connMap[entry]; ok {
			continue
		}
		conns, err := a.discover(ctx, entry)
		if err != nil {
			return err
		}
		connMap[entry] = conns
	}

	slog.Info("Generating output files")
	rend := renderer.NewRenderer(filepath.Dir(configPath))
	for _, outCfg := range a.cfg.Outputs {
		slog.Info("Rendering template", "output_file", outCfg.OutputFile)

		data, err := a.templateData(ctx, outCfg, connMap[outCfg.Data.ConnectionName])
		if err != nil {
			return fmt.Errorf("failed to collect MBeans for '%s': %w", outCfg.OutputFile, err)
		}

		var output []byte
		if outCfg.Check != nil {
			output, err = renderer.GenerateCheck(data, *outCfg.Check)
		} else {
			output, err = rend.Render(outCfg.Template, data)
		}
		if err != nil {
			return fmt.Errorf("failed to render output for '%s': %w", outCfg.OutputFile, err)
		}

		if generateDryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", titleStyle.Render("# "+outCfg.OutputFile), output)
			continue
		}
		if err := writeOutput(outCfg.OutputFile, output); err != nil {
			return err
		}
		slog.Info("Written output file", "path", outCfg.OutputFile)
	}

	slog.Info("Done!")
	return nil
}

// templateData refreshes the tree of every connection and selects the
// MBeans requested by the output
func (a *app) templateData(ctx context.Context, outCfg config.OutputConfig, conns []resources.Connection) (renderer.TemplateData, error) {
	var filter *query.Filter
	if outCfg.Data.Filter != "" {
		f, err := query.Compile(outCfg.Data.Filter)
		if err != nil {
			return renderer.TemplateData{}, err
		}
		filter = f
	}

	data := renderer.TemplateData{Static: outCfg.Data.Static}
	for _, conn := range conns {
		s, err := a.openSession(ctx, conn)
		if err != nil {
			return renderer.TemplateData{}, err
		}
		tree, err := s.workspace.Refresh(ctx)
		if err != nil {
			return renderer.TemplateData{}, fmt.Errorf("failed to refresh MBeans of '%s': %w", conn.Name, err)
		}

		nodes := selectNodes(tree, outCfg.Data.Domain, filter)
		slog.Debug("Selected MBeans", "connection", conn.Name, "count", len(nodes))
		data.Connections = append(data.Connections, renderer.ConnectionData{
			Connection: conn,
			MBeans:     renderer.FromNodes(nodes),
		})
	}
	return data, nil
}

// selectNodes returns the MBean nodes of the domain, or of the whole tree,
// that match the filter
func selectNodes(tree *mbean.Tree, domain string, filter *query.Filter) []*mbean.Node {
	var nodes []*mbean.Node
	collect := func(n *mbean.Node) {
		if n.MBean == nil {
			return
		}
		if filter != nil && !filter.Match(n) {
			return
		}
		nodes = append(nodes, n)
	}

	if domain == "" {
		tree.Walk(collect)
		return nodes
	}
	root := tree.Get(domain)
	if root == nil {
		return nil
	}
	mbean.NewTreeFromNodes(tree.ID(), []*mbean.Node{root}).Walk(collect)
	return nodes
}

func writeOutput(path string, output []byte) error {
	// Create output directory if needed
	outDir := filepath.Dir(path)
	if outDir != "" && outDir != "." {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory '%s': %w", outDir, err)
		}
	}

	if err := os.WriteFile(path, output, 0644); err != nil {
		return fmt.Errorf("failed to write output file '%s': %w", path, err)
	}
	return nil
}
