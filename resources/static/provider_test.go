package static

import (
	"context"
	"testing"

	"github.com/moepig/jmx-conf-gen/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Type(t *testing.T) {
	assert.Equal(t, "static", NewProvider().Type())
}

func TestProvider_ValidateConfig(t *testing.T) {
	provider := NewProvider()

	t.Run("valid config", func(t *testing.T) {
		err := provider.ValidateConfig(resources.ProviderConfig{URL: "http://localhost:8778/jolokia"})
		assert.NoError(t, err)
	})

	t.Run("missing url", func(t *testing.T) {
		err := provider.ValidateConfig(resources.ProviderConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "url is required")
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		err := provider.ValidateConfig(resources.ProviderConfig{URL: "jmx://localhost:9999"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http or https")
	})

	t.Run("invalid tags filter type", func(t *testing.T) {
		err := provider.ValidateConfig(resources.ProviderConfig{
			URL:     "http://localhost:8778/jolokia",
			Filters: map[string]interface{}{"tags": "env=prod"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "filters.tags must be a map")
	})
}

func TestProvider_Discover(t *testing.T) {
	conns, err := NewProvider().Discover(context.Background(), resources.ProviderConfig{
		Name: "local",
		URL:  "http://localhost:8778/jolokia",
		Filters: map[string]interface{}{
			"tags": map[string]interface{}{"env": "dev"},
		},
	})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "local", conns[0].Name)
	assert.Equal(t, "http://localhost:8778/jolokia", conns[0].URL)
	assert.Equal(t, map[string]string{"env": "dev"}, conns[0].Tags)
}
