package discovery

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moepig/jmx-conf-gen/mbean"
)

func TestReconciler_Unwind(t *testing.T) {
	t.Run("verbose listing", func(t *testing.T) {
		res, err := NewReconciler().Unwind(json.RawMessage(verboseListing), nil)
		require.NoError(t, err)
		assert.Equal(t, ShapeVerbose, res.Shape)
		assert.Empty(t, res.Skipped)
		assert.Equal(t, 3, res.Domains.Count())
		assert.Equal(t, mbean.RightsNotDecorated, res.Domains["java.lang"]["type=Memory"].Rights)
	})

	t.Run("compact listing skips dangling references", func(t *testing.T) {
		res, err := NewReconciler().Unwind(json.RawMessage(compactListingJSON), nil)
		require.NoError(t, err)
		assert.Equal(t, ShapeCompact, res.Shape)
		require.Len(t, res.Skipped, 1)
		assert.True(t, errors.Is(res.Skipped[0], ErrDanglingReference))

		var entryErr *EntryError
		require.ErrorAs(t, res.Skipped[0], &entryErr)
		assert.Equal(t, "org.acme", entryErr.Domain)
		assert.Equal(t, "type=A,name=3", entryErr.PropList)

		tree, err := mbean.Build("t", res.Domains, nil)
		require.NoError(t, err)
		assert.Len(t, tree.Flatten(), 4-1)
	})

	t.Run("descriptor errors are skipped", func(t *testing.T) {
		raw := `{"org.acme": {"type=Broken": {"error": "java.lang.RuntimeException: boom"}, "type=Fine": {"desc": "ok"}}}`
		res, err := NewReconciler().Unwind(json.RawMessage(raw), nil)
		require.NoError(t, err)
		require.Len(t, res.Skipped, 1)
		assert.ErrorIs(t, res.Skipped[0], ErrDescriptorError)
		assert.Contains(t, res.Domains["org.acme"], "type=Fine")
		assert.NotContains(t, res.Domains["org.acme"], "type=Broken")
	})

	t.Run("path relative listings restore context", func(t *testing.T) {
		r := NewReconciler()

		res, err := r.Unwind(json.RawMessage(`{"type=Memory": {"desc": "memory"}}`), []string{"java.lang"})
		require.NoError(t, err)
		assert.Contains(t, res.Domains["java.lang"], "type=Memory")

		res, err = r.Unwind(json.RawMessage(`{"desc": "memory"}`), []string{"java.lang", "type=Memory"})
		require.NoError(t, err)
		assert.Equal(t, "memory", res.Domains["java.lang"]["type=Memory"].Desc)

		_, err = r.Unwind(json.RawMessage(`{}`), []string{"a", "b", "c"})
		assert.Error(t, err)
	})

	t.Run("cache persists across responses", func(t *testing.T) {
		r := NewReconciler()
		_, err := r.Unwind(json.RawMessage(`{"cache": {"k": {"desc": "shared"}}, "domains": {}}`), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, r.CacheSize())

		res, err := r.Unwind(json.RawMessage(`{"cache": {}, "domains": {"org.acme": {"type=X": "k"}}}`), nil)
		require.NoError(t, err)
		assert.Empty(t, res.Skipped)
		assert.Equal(t, "shared", res.Domains["org.acme"]["type=X"].Desc)

		r.Reset()
		assert.Equal(t, 0, r.CacheSize())
		res, err = r.Unwind(json.RawMessage(`{"cache": {}, "domains": {"org.acme": {"type=X": "k"}}}`), nil)
		require.NoError(t, err)
		assert.Len(t, res.Skipped, 1)
	})

	t.Run("domains named cache are not mistaken for compact", func(t *testing.T) {
		raw := `{"cache": {"type=A": {"desc": "a"}}, "domains": {"type=B": {"desc": "b"}}, "other": {}}`
		res, err := NewReconciler().Unwind(json.RawMessage(raw), nil)
		require.NoError(t, err)
		assert.Equal(t, ShapeVerbose, res.Shape)
		assert.Contains(t, res.Domains["cache"], "type=A")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := NewReconciler().Unwind(json.RawMessage(`[1,2]`), nil)
		assert.Error(t, err)
	})
}

func TestMergeDomains(t *testing.T) {
	dst := mbean.Domains{"a": {"type=1": {Desc: "one"}}}
	MergeDomains(dst, mbean.Domains{
		"a": {"type=2": {Desc: "two"}},
		"b": {"type=3": {Desc: "three"}},
	})
	assert.Equal(t, 3, dst.Count())
	assert.Equal(t, "two", dst["a"]["type=2"].Desc)
}
