package renderer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/moepig/jmx-conf-gen/mbean"
	"github.com/moepig/jmx-conf-gen/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content string) string {
	tmpfile, err := os.CreateTemp("", "template-*.tmpl")
	require.NoError(t, err)
	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func memoryMBean() MBean {
	return MBean{
		ObjectName: "java.lang:type=Memory",
		Domain:     "java.lang",
		Properties: map[string]string{"type": "Memory"},
		Attributes: []Attribute{
			{Name: "ObjectPendingFinalizationCount", Type: "int"},
			{Name: "Verbose", Type: "boolean", Writable: true},
		},
		Operations: []string{"gc"},
	}
}

func TestRenderer_Render(t *testing.T) {
	t.Run("simple template", func(t *testing.T) {
		templateContent := `init_config:
  is_jmx: true

instances:
{{- range .Connections }}
  - jolokia_url: {{ .URL }}
    conf:
    {{- range .MBeans }}
      - include:
          domain: {{ .Domain }}
          bean: {{ quote .ObjectName }}
    {{- end }}
{{- end }}
`
		tmpfile := createTempFile(t, templateContent)
		defer os.Remove(tmpfile)

		renderer := NewRenderer("")
		data := TemplateData{
			Connections: []ConnectionData{
				{
					Connection: resources.Connection{Name: "local", URL: "http://localhost:8778/jolokia"},
					MBeans:     []MBean{memoryMBean()},
				},
			},
		}

		result, err := renderer.Render(tmpfile, data)
		require.NoError(t, err)

		expected := `init_config:
  is_jmx: true

instances:
  - jolokia_url: http://localhost:8778/jolokia
    conf:
      - include:
          domain: java.lang
          bean: "java.lang:type=Memory"
`
		assert.Equal(t, expected, string(result))
	})

	t.Run("numeric attributes and tags", func(t *testing.T) {
		templateContent := `instances:
{{- range .Connections }}
  - name: {{ .Name }}
    tags:
    {{- range $key, $value := .Tags }}
      - {{ $key }}:{{ $value }}
    {{- end }}
    {{- range .MBeans }}
    attributes: [{{ range $i, $a := numeric .Attributes }}{{ if $i }}, {{ end }}{{ $a.Name }}{{ end }}]
    operations: {{ join .Operations "," }}
    {{- end }}
{{- end }}
`
		tmpfile := createTempFile(t, templateContent)
		defer os.Remove(tmpfile)

		data := TemplateData{
			Connections: []ConnectionData{
				{
					Connection: resources.Connection{
						Name: "prod/i-0a",
						Tags: map[string]string{"env": "production"},
					},
					MBeans: []MBean{memoryMBean()},
				},
			},
		}

		result, err := NewRenderer("").Render(tmpfile, data)
		require.NoError(t, err)

		resultStr := string(result)
		assert.Contains(t, resultStr, "- name: prod/i-0a")
		assert.Contains(t, resultStr, "env:production")
		assert.Contains(t, resultStr, "attributes: [ObjectPendingFinalizationCount]")
		assert.Contains(t, resultStr, "operations: gc")
	})

	t.Run("template with static values", func(t *testing.T) {
		templateContent := `init_config:
  service: {{ .Static.service }}
`
		tmpfile := createTempFile(t, templateContent)
		defer os.Remove(tmpfile)

		result, err := NewRenderer("").Render(tmpfile, TemplateData{
			Static: map[string]interface{}{"service": "billing"},
		})
		require.NoError(t, err)
		assert.Equal(t, "init_config:\n  service: billing\n", string(result))
	})

	t.Run("relative path resolved against template dir", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "conf.tmpl"), []byte("{{ len .Connections }}"), 0o644))

		result, err := NewRenderer(dir).Render("conf.tmpl", TemplateData{})
		require.NoError(t, err)
		assert.Equal(t, "0", string(result))
	})

	t.Run("missing template file", func(t *testing.T) {
		_, err := NewRenderer("").Render("/nonexistent/template.tmpl", TemplateData{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read template file")
	})

	t.Run("invalid template syntax", func(t *testing.T) {
		tmpfile := createTempFile(t, "{{ range .Connections }")
		defer os.Remove(tmpfile)

		_, err := NewRenderer("").Render(tmpfile, TemplateData{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse template")
	})

	t.Run("missing static key", func(t *testing.T) {
		tmpfile := createTempFile(t, "{{ .Static.missing }}")
		defer os.Remove(tmpfile)

		_, err := NewRenderer("").Render(tmpfile, TemplateData{Static: map[string]interface{}{}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute template")
	})
}

func TestFromNodes(t *testing.T) {
	tree, err := mbean.Build("t", mbean.Domains{
		"java.lang": {
			"type=Memory": {
				Desc: "memory",
				Attr: map[string]*mbean.Attribute{
					"Verbose":                        {Type: "boolean", RW: true},
					"ObjectPendingFinalizationCount": {Type: "int"},
				},
				Op: map[string]mbean.Operations{"gc": {{Args: []mbean.Argument{}}}},
			},
			"type=GarbageCollector,name=G1": {Desc: "gc"},
		},
	}, nil)
	require.NoError(t, err)

	var nodes []*mbean.Node
	tree.Walk(func(n *mbean.Node) { nodes = append(nodes, n) })

	mbeans := FromNodes(nodes)
	require.Len(t, mbeans, 2)
	assert.Equal(t, "java.lang:name=G1,type=GarbageCollector", mbeans[0].ObjectName)
	assert.Equal(t, "java.lang:type=Memory", mbeans[1].ObjectName)

	memory := mbeans[1]
	assert.Equal(t, "java.lang", memory.Domain)
	assert.Equal(t, map[string]string{"type": "Memory"}, memory.Properties)
	assert.Equal(t, []string{"gc"}, memory.Operations)
	require.Len(t, memory.Attributes, 2)
	assert.Equal(t, "ObjectPendingFinalizationCount", memory.Attributes[0].Name)
	assert.True(t, memory.Attributes[1].Writable)
}
