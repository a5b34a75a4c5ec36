package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moepig/jmx-conf-gen/mbean"
)

func testTree(t *testing.T) *mbean.Tree {
	t.Helper()
	tree, err := mbean.Build("t", mbean.Domains{
		"java.lang": {
			"type=Memory": {
				Attr: map[string]*mbean.Attribute{"Verbose": {Type: "boolean", RW: true}},
				Op:   map[string]mbean.Operations{"gc": {{Args: []mbean.Argument{}}}},
			},
			"type=GarbageCollector,name=G1 Young Generation": {
				Attr: map[string]*mbean.Attribute{"CollectionCount": {Type: "long"}},
			},
		},
		"org.acme": {
			"type=Service,name=App": {Desc: "app"},
		},
	}, nil)
	require.NoError(t, err)
	return tree
}

func TestCompile(t *testing.T) {
	t.Run("valid expression", func(t *testing.T) {
		f, err := Compile(`mbean && props.type == "Memory"`)
		require.NoError(t, err)
		assert.Equal(t, `mbean && props.type == "Memory"`, f.String())
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := Compile(`props.type ==`)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidExpression)
	})

	t.Run("unknown variable", func(t *testing.T) {
		_, err := Compile(`unknown == "x"`)
		assert.ErrorIs(t, err, ErrInvalidExpression)
	})

	t.Run("non bool result", func(t *testing.T) {
		_, err := Compile(`name`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not bool")
	})

	t.Run("must compile panics", func(t *testing.T) {
		assert.Panics(t, func() { MustCompile(`1 +`) })
	})
}

func TestFilter_Match(t *testing.T) {
	tree := testTree(t)

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{
			name: "by property",
			expr: `mbean && props.type == "Memory"`,
			want: []string{"java.lang:type=Memory"},
		},
		{
			name: "by attribute",
			expr: `"CollectionCount" in attributes`,
			want: []string{"java.lang:type=GarbageCollector,name=G1 Young Generation"},
		},
		{
			name: "by operation and domain",
			expr: `domain == "java.lang" && "gc" in operations`,
			want: []string{"java.lang:type=Memory"},
		},
		{
			name: "missing key is no match",
			expr: `props.name == "App"`,
			want: []string{"org.acme:type=Service,name=App"},
		},
		{
			name: "object name functions",
			expr: `objectName.startsWith("org.acme:")`,
			want: []string{"org.acme:type=Service,name=App"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := MustCompile(tt.expr)
			filtered := tree.Filter(f.Func())
			var got []string
			for name := range filtered.Flatten() {
				got = append(got, name)
			}
			want := make([]string, 0, len(tt.want))
			for _, w := range tt.want {
				domain, props, _ := strings.Cut(w, ":")
				pl, err := mbean.ParsePropertyList(domain, props, nil)
				require.NoError(t, err)
				want = append(want, pl.CanonicalName())
			}
			assert.ElementsMatch(t, want, got)
		})
	}

	t.Run("folders", func(t *testing.T) {
		f := MustCompile(`folder && name == "Service"`)
		found := tree.Find(f.Func())
		require.NotNil(t, found)
		assert.Equal(t, []string{"org.acme", "Service"}, found.Path())
	})
}
