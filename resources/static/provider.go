package static

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/moepig/jmx-conf-gen/resources"
)

const providerType = "static"

// Provider implements the resources.Provider interface for connections
// declared with a fixed URL
type Provider struct{}

// NewProvider creates a new static provider
func NewProvider() *Provider {
	return &Provider{}
}

// Type returns the connection type handled by this provider
func (p *Provider) Type() string {
	return providerType
}

// ValidateConfig checks if the provider configuration is valid
func (p *Provider) ValidateConfig(cfg resources.ProviderConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https: %s", cfg.URL)
	}
	if _, err := resources.StringMap(cfg.Filters, "tags"); err != nil {
		return err
	}
	return nil
}

// Discover returns the single configured connection
func (p *Provider) Discover(ctx context.Context, cfg resources.ProviderConfig) ([]resources.Connection, error) {
	if err := p.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	tags, _ := resources.StringMap(cfg.Filters, "tags")
	slog.Debug("Using static connection", "name", cfg.Name, "url", cfg.URL)
	return []resources.Connection{{
		Name:     cfg.Name,
		URL:      cfg.URL,
		Tags:     tags,
		Metadata: map[string]interface{}{"Source": providerType},
	}}, nil
}
