package resources

import "context"

// Provider discovers the Jolokia endpoints of one connection entry
type Provider interface {
	// Type returns the connection type handled by this provider
	Type() string

	// Discover returns the connections described by the configuration
	Discover(ctx context.Context, config ProviderConfig) ([]Connection, error)

	// ValidateConfig checks if the provider configuration is valid
	ValidateConfig(config ProviderConfig) error
}

// ProviderConfig represents one configured connection entry
type ProviderConfig struct {
	Name    string
	URL     string
	Region  string
	Filters map[string]interface{}
}
