package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/moepig/jmx-conf-gen/mbean"
)

// Tree output styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	folderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("141"))

	mbeanStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	lockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// printTree writes the tree with box-drawing connectors. MBean nodes show
// their object name dimmed; locked MBeans are highlighted.
func printTree(w io.Writer, title string, roots []*mbean.Node) {
	fmt.Fprintln(w, titleStyle.Render(title))
	for i, root := range roots {
		printNode(w, root, "", i == len(roots)-1)
	}
}

func printNode(w io.Writer, n *mbean.Node, prefix string, last bool) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	fmt.Fprintln(w, prefix+connector+nodeLabel(n))

	children := n.Children()
	for i, c := range children {
		printNode(w, c, childPrefix, i == len(children)-1)
	}
}

func nodeLabel(n *mbean.Node) string {
	switch {
	case n.IsFolder():
		return folderStyle.Render(n.Name)
	case n.Icon == mbean.IconLocked:
		return lockedStyle.Render(n.Name+" [locked]") + " " + dimStyle.Render(n.ObjectName)
	default:
		return mbeanStyle.Render(n.Name) + " " + dimStyle.Render(n.ObjectName)
	}
}

// nodeJSON is the --json view of a tree node
type nodeJSON struct {
	Name       string      `json:"name"`
	ID         string      `json:"id"`
	Folder     bool        `json:"folder,omitempty"`
	ObjectName string      `json:"objectName,omitempty"`
	CanInvoke  *bool       `json:"canInvoke,omitempty"`
	Children   []*nodeJSON `json:"children,omitempty"`
}

func toJSON(n *mbean.Node) *nodeJSON {
	out := &nodeJSON{
		Name:       n.Name,
		ID:         n.ID,
		Folder:     n.IsFolder(),
		ObjectName: n.ObjectName,
	}
	if n.MBean != nil {
		out.CanInvoke = n.MBean.CanInvoke
	}
	for _, c := range n.Children() {
		out.Children = append(out.Children, toJSON(c))
	}
	return out
}

func printTreeJSON(w io.Writer, roots []*mbean.Node) error {
	out := make([]*nodeJSON, 0, len(roots))
	for _, root := range roots {
		out = append(out, toJSON(root))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printValue writes a value returned by the agent as indented JSON
func printValue(w io.Writer, v interface{}) error {
	if s, ok := v.(string); ok {
		fmt.Fprintln(w, s)
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	fmt.Fprintln(w, strings.TrimSpace(string(data)))
	return nil
}
