package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/moepig/jmx-conf-gen/discovery"
	"github.com/moepig/jmx-conf-gen/mbean"
	"github.com/moepig/jmx-conf-gen/query"
)

var (
	treeConnection string
	treeFilter     string
	treeDomain     string
	treeJSON       bool
	treeWatch      bool
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the MBean tree of a connection",
	Long: `Show the MBean tree of a connection.

Domains are top-level folders. Below them MBeans are nested by the values of
their key properties, ordered by the configured conventions.

Filter expressions are CEL and see the variables name, id, domain,
objectName, folder, mbean, props, attributes and operations.

Examples:
  jmx-conf-gen tree --config config.yaml --connection local
  jmx-conf-gen tree --config config.yaml --domain java.lang
  jmx-conf-gen tree --config config.yaml --filter 'mbean && "gc" in operations'
  jmx-conf-gen tree --config config.yaml --watch
  jmx-conf-gen tree --config config.yaml --watch --domain java.lang
`,
	Args: cobra.NoArgs,
	RunE: runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)

	treeCmd.Flags().StringVarP(&treeConnection, "connection", "c", "", "Connection name (required when several exist)")
	treeCmd.Flags().StringVar(&treeFilter, "filter", "", "CEL expression selecting nodes")
	treeCmd.Flags().StringVar(&treeDomain, "domain", "", "Only show this domain")
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Output as JSON")
	treeCmd.Flags().BoolVarP(&treeWatch, "watch", "w", false, "Refresh and reprint the tree until interrupted")
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var filter *query.Filter
	if treeFilter != "" {
		f, err := query.Compile(treeFilter)
		if err != nil {
			return err
		}
		filter = f
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	conn, err := a.connection(ctx, treeConnection)
	if err != nil {
		return err
	}
	s, err := a.openSession(ctx, conn)
	if err != nil {
		return err
	}

	tree, err := s.workspace.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := showTree(cmd.OutOrStdout(), conn.Name, tree, filter); err != nil {
		return err
	}
	if !treeWatch {
		return nil
	}

	_, interval, err := a.refreshSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load refresh settings: %w", err)
	}
	return watchTree(ctx, cmd.OutOrStdout(), s, interval, treeDomain, filter)
}

// watchTree reprints whenever a new tree is published. With a domain only
// that domain is reloaded on each tick. A refresh still running on exit is
// abandoned.
func watchTree(ctx context.Context, w io.Writer, s *session, interval time.Duration, domain string, filter *query.Filter) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if domain == "" {
		go s.workspace.AutoRefresh(ctx, interval)
	}

	var lastID string
	if tree := s.workspace.Current(); tree != nil {
		lastID = tree.ID()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.workspace.Abandon()
			return nil
		case <-ticker.C:
			tree := s.workspace.Current()
			if domain != "" {
				tree = refreshDomain(ctx, s.workspace, domain)
			}
			if tree == nil || tree.ID() == lastID {
				continue
			}
			lastID = tree.ID()
			if err := showTree(w, s.conn.Name, tree, filter); err != nil {
				return err
			}
		}
	}
}

// refreshDomain reloads one domain and returns the tree that is current
// afterwards. Failures keep the previous tree.
func refreshDomain(ctx context.Context, ws *discovery.Workspace, domain string) *mbean.Tree {
	tree, err := ws.RefreshDomain(ctx, domain)
	switch {
	case err == nil:
		return tree
	case errors.Is(err, discovery.ErrRefreshInFlight):
		slog.Debug("Skipping domain refresh", "domain", domain, "error", err)
	case ctx.Err() != nil:
	default:
		slog.Warn("Domain refresh failed", "domain", domain, "error", err)
	}
	return ws.Current()
}

func showTree(w io.Writer, name string, tree *mbean.Tree, filter *query.Filter) error {
	if filter != nil {
		tree = tree.Filter(filter.Func())
	}

	roots := tree.Roots()
	if treeDomain != "" {
		root := tree.Get(treeDomain)
		if root == nil {
			return fmt.Errorf("domain '%s' not found", treeDomain)
		}
		roots = []*mbean.Node{root}
	}

	if treeJSON {
		return printTreeJSON(w, roots)
	}
	printTree(w, fmt.Sprintf("%s (%d MBeans)", name, len(tree.Flatten())), roots)
	return nil
}
