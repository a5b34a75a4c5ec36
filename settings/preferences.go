package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/moepig/jmx-conf-gen/jolokia"
)

// Keys under which the connection preferences are stored.
const (
	KeyUpdateRate     = "connect.jolokia.updateRate"
	KeyAutoRefresh    = "connect.jolokia.autoRefresh"
	KeyJolokiaOptions = "connect.jolokia.options"
)

// StoredOptions are the Jolokia request options a user saved.
type StoredOptions struct {
	MaxDepth          int `json:"maxDepth"`
	MaxCollectionSize int `json:"maxCollectionSize"`
}

// Options converts the stored values to request options.
func (o StoredOptions) Options() jolokia.Options {
	return jolokia.Options{MaxDepth: o.MaxDepth, MaxCollectionSize: o.MaxCollectionSize}
}

// Preferences reads and writes typed preferences over a Store. Unset or
// unparsable values fall back to the defaults.
type Preferences struct {
	store Store
}

// NewPreferences wraps store.
func NewPreferences(store Store) *Preferences {
	return &Preferences{store: store}
}

// LoadUpdateRate returns the refresh interval in milliseconds.
func (p *Preferences) LoadUpdateRate(ctx context.Context) (int, error) {
	v, ok, err := p.store.Get(ctx, KeyUpdateRate)
	if err != nil || !ok {
		return jolokia.DefaultUpdateRate, err
	}
	rate, err := strconv.Atoi(v)
	if err != nil || rate <= 0 {
		slog.Warn("Ignoring invalid stored update rate", "value", v)
		return jolokia.DefaultUpdateRate, nil
	}
	return rate, nil
}

// SaveUpdateRate stores the refresh interval in milliseconds.
func (p *Preferences) SaveUpdateRate(ctx context.Context, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("update rate must be positive, got %d", rate)
	}
	return p.store.Set(ctx, KeyUpdateRate, strconv.Itoa(rate))
}

// LoadAutoRefresh reports whether the tree refreshes periodically.
func (p *Preferences) LoadAutoRefresh(ctx context.Context) (bool, error) {
	v, ok, err := p.store.Get(ctx, KeyAutoRefresh)
	if err != nil || !ok {
		return jolokia.DefaultAutoRefresh, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Ignoring invalid stored auto refresh flag", "value", v)
		return jolokia.DefaultAutoRefresh, nil
	}
	return enabled, nil
}

// SaveAutoRefresh stores the auto refresh flag.
func (p *Preferences) SaveAutoRefresh(ctx context.Context, enabled bool) error {
	return p.store.Set(ctx, KeyAutoRefresh, strconv.FormatBool(enabled))
}

// LoadJolokiaStoredOptions returns the saved request options.
func (p *Preferences) LoadJolokiaStoredOptions(ctx context.Context) (StoredOptions, error) {
	defaults := StoredOptions{
		MaxDepth:          jolokia.DefaultMaxDepth,
		MaxCollectionSize: jolokia.DefaultMaxCollectionSize,
	}
	v, ok, err := p.store.Get(ctx, KeyJolokiaOptions)
	if err != nil || !ok {
		return defaults, err
	}
	opts := defaults
	if err := json.Unmarshal([]byte(v), &opts); err != nil {
		slog.Warn("Ignoring invalid stored Jolokia options", "value", v, "error", err)
		return defaults, nil
	}
	return opts, nil
}

// SaveJolokiaStoredOptions stores the request options.
func (p *Preferences) SaveJolokiaStoredOptions(ctx context.Context, opts StoredOptions) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to encode Jolokia options: %w", err)
	}
	return p.store.Set(ctx, KeyJolokiaOptions, string(data))
}
