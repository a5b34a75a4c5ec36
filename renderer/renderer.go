package renderer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/moepig/jmx-conf-gen/mbean"
	"github.com/moepig/jmx-conf-gen/resources"
)

// TemplateData represents data passed to templates
type TemplateData struct {
	Connections []ConnectionData
	Static      map[string]interface{}
}

// ConnectionData is one connection and the MBeans selected from it
type ConnectionData struct {
	resources.Connection
	MBeans []MBean
}

// MBean is the template view of a discovered MBean
type MBean struct {
	ObjectName string
	Domain     string
	Properties map[string]string
	Desc       string
	Class      string
	Attributes []Attribute
	Operations []string
}

// Attribute is the template view of an MBean attribute
type Attribute struct {
	Name     string
	Type     string
	Writable bool
	Desc     string
}

// FromNodes converts MBean nodes into template values ordered by ObjectName.
// Folder-only nodes are skipped.
func FromNodes(nodes []*mbean.Node) []MBean {
	var out []MBean
	for _, n := range nodes {
		if n.MBean == nil || n.PropertyList == nil {
			continue
		}
		m := MBean{
			ObjectName: n.PropertyList.CanonicalName(),
			Domain:     n.PropertyList.Domain(),
			Properties: n.PropertyList.Map(),
			Desc:       n.MBean.Desc,
			Class:      n.MBean.Class,
			Operations: n.MBean.OperationNames(),
		}
		for _, name := range n.MBean.AttributeNames() {
			attr := n.MBean.Attr[name]
			m.Attributes = append(m.Attributes, Attribute{
				Name:     name,
				Type:     attr.Type,
				Writable: attr.RW,
				Desc:     attr.Desc,
			})
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectName < out[j].ObjectName })
	return out
}

// numericTypes are the attribute types a metrics collector can report
var numericTypes = map[string]bool{
	"int": true, "long": true, "double": true, "float": true, "short": true, "byte": true,
	"java.lang.Integer": true, "java.lang.Long": true, "java.lang.Double": true,
	"java.lang.Float": true, "java.lang.Short": true, "java.lang.Byte": true,
}

func numericAttributes(attrs []Attribute) []Attribute {
	var out []Attribute
	for _, a := range attrs {
		if numericTypes[a.Type] {
			out = append(out, a)
		}
	}
	return out
}

var funcs = template.FuncMap{
	"join":    strings.Join,
	"lower":   strings.ToLower,
	"quote":   func(s string) string { return fmt.Sprintf("%q", s) },
	"numeric": numericAttributes,
}

// Renderer handles template rendering
type Renderer struct {
	templateDir string
}

// NewRenderer creates a new Renderer. Relative template paths are resolved
// against templateDir.
func NewRenderer(templateDir string) *Renderer {
	return &Renderer{
		templateDir: templateDir,
	}
}

// Render renders a template with the given data
func (r *Renderer) Render(templatePath string, data TemplateData) ([]byte, error) {
	if r.templateDir != "" && !filepath.IsAbs(templatePath) {
		templatePath = filepath.Join(r.templateDir, templatePath)
	}

	// Read template file
	content, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	// Parse template
	tmpl, err := template.New("config").Funcs(funcs).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	// Execute template
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.Bytes(), nil
}
