package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/moepig/jmx-conf-gen/jolokia"
	"github.com/moepig/jmx-conf-gen/mbean"
)

var (
	accessConnection string
	readWatch        bool
	execForce        bool
)

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search ObjectNames matching a pattern",
	Long: `Search ObjectNames matching a pattern.

Examples:
  jmx-conf-gen search 'java.lang:type=*' --config config.yaml
`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var readCmd = &cobra.Command{
	Use:   "read <mbean> [attribute...]",
	Short: "Read MBean attributes",
	Long: `Read MBean attributes. Without attribute names every attribute is read.
Several attributes are read in one bulk request.

Examples:
  jmx-conf-gen read java.lang:type=Memory --config config.yaml
  jmx-conf-gen read java.lang:type=Memory HeapMemoryUsage --watch
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <mbean> <attribute> <value>",
	Short: "Write an MBean attribute",
	Long: `Write an MBean attribute and print its previous value. The value is parsed
as JSON and sent as a string when it is not valid JSON.

Examples:
  jmx-conf-gen write java.lang:type=Memory Verbose true --config config.yaml
`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var execCmd = &cobra.Command{
	Use:   "exec <mbean> <operation> [argument...]",
	Short: "Invoke an MBean operation",
	Long: `Invoke an MBean operation. Overloaded operations need the full signature,
for example 'start(int)'. Arguments are parsed like write values.

The invocation rights discovered for the MBean are checked first; use --force
to send the request anyway.

Examples:
  jmx-conf-gen exec java.lang:type=Memory gc --config config.yaml
`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, readCmd, writeCmd, execCmd} {
		c.Flags().StringVarP(&accessConnection, "connection", "c", "", "Connection name (required when several exist)")
		rootCmd.AddCommand(c)
	}
	readCmd.Flags().BoolVarP(&readWatch, "watch", "w", false, "Poll the attributes until interrupted")
	execCmd.Flags().BoolVar(&execForce, "force", false, "Invoke without checking invocation rights")
}

// openAccess loads the configuration and opens a session on the selected
// connection
func openAccess(ctx context.Context) (*app, *session, error) {
	a, err := loadApp()
	if err != nil {
		return nil, nil, err
	}
	conn, err := a.connection(ctx, accessConnection)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	s, err := a.openSession(ctx, conn)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, s, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, s, err := openAccess(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := s.service.Search(ctx, args[0])
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, s, err := openAccess(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	name, attrs := args[0], args[1:]
	if readWatch {
		_, interval, err := a.refreshSettings(ctx)
		if err != nil {
			return fmt.Errorf("failed to load refresh settings: %w", err)
		}
		return watchAttributes(ctx, cmd, s, name, attrs, interval)
	}

	values, err := readValues(ctx, s, name, attrs)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), values)
}

// readValues reads all attributes, one attribute, or several attributes in
// one bulk request
func readValues(ctx context.Context, s *session, name string, attrs []string) (interface{}, error) {
	switch len(attrs) {
	case 0:
		return s.service.ReadAttributes(ctx, name)
	case 1:
		return s.service.ReadAttribute(ctx, name, attrs[0])
	}

	reqs := make([]jolokia.Request, len(attrs))
	for i, attr := range attrs {
		reqs[i] = jolokia.Request{Type: jolokia.TypeRead, MBean: name, Attribute: attr}
	}
	resps, err := s.service.BulkRequest(ctx, reqs)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(attrs))
	for i, resp := range resps {
		if err := resp.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", attrs[i], err)
		}
		values[attrs[i]] = parseValue(string(resp.Value))
	}
	return values, nil
}

// watchAttributes registers the read with the client poller and prints every
// response until the command is interrupted
func watchAttributes(ctx context.Context, cmd *cobra.Command, s *session, name string, attrs []string, interval time.Duration) error {
	req := jolokia.Request{Type: jolokia.TypeRead, MBean: name}
	switch len(attrs) {
	case 0:
	case 1:
		req.Attribute = attrs[0]
	default:
		req.Attribute = attrs
	}

	var mu sync.Mutex
	out := cmd.OutOrStdout()
	handle, err := s.service.Register(req, func(resp *jolokia.Response) {
		mu.Lock()
		defer mu.Unlock()
		if err := resp.Err(); err != nil {
			fmt.Fprintln(out, lockedStyle.Render(err.Error()))
			return
		}
		if err := printValue(out, parseValue(string(resp.Value))); err != nil {
			fmt.Fprintln(out, lockedStyle.Render(err.Error()))
		}
	})
	if err != nil {
		return err
	}
	defer s.service.Unregister(handle)

	if err := s.client.Poll(ctx); err != nil {
		return err
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.client.Run(ctx, interval)
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, s, err := openAccess(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	previous, err := s.service.WriteAttribute(ctx, args[0], args[1], parseValue(args[2]))
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), previous)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, s, err := openAccess(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	name, operation := args[0], args[1]
	if !execForce {
		if err := checkInvokeRights(ctx, s, name, operation); err != nil {
			return err
		}
	}

	params := make([]interface{}, 0, len(args)-2)
	for _, arg := range args[2:] {
		params = append(params, parseValue(arg))
	}
	result, err := s.service.Execute(ctx, name, operation, params...)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), result)
}

// checkInvokeRights looks the MBean up in a fresh tree and fails when the
// operation is unknown or denied
func checkInvokeRights(ctx context.Context, s *session, name, operation string) error {
	domain, props, ok := strings.Cut(name, ":")
	if !ok {
		return fmt.Errorf("invalid ObjectName '%s'", name)
	}
	propList, err := mbean.ParsePropertyList(domain, props, nil)
	if err != nil {
		return fmt.Errorf("invalid ObjectName '%s': %w", name, err)
	}

	tree, err := s.workspace.Tree(ctx)
	if err != nil {
		return err
	}
	node, ok := tree.Flatten()[propList.CanonicalName()]
	if !ok {
		return fmt.Errorf("MBean '%s' not found", name)
	}
	if !node.HasOperations(operation) {
		return fmt.Errorf("MBean '%s' has no operation '%s'", name, operation)
	}
	if !node.HasInvokeRights(operation) {
		return fmt.Errorf("not allowed to invoke '%s' on '%s'", operation, name)
	}
	return nil
}

// parseValue decodes s as JSON, falling back to the string itself
func parseValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
