package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/moepig/jmx-conf-gen/config"
	"github.com/moepig/jmx-conf-gen/discovery"
	"github.com/moepig/jmx-conf-gen/jolokia"
	"github.com/moepig/jmx-conf-gen/resources"
	"github.com/moepig/jmx-conf-gen/settings"
)

// app holds what every command needs: configuration and preferences
type app struct {
	cfg   *config.Config
	store settings.Store
	prefs *settings.Preferences
}

func loadApp() (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config option is required")
	}

	slog.Debug("Loading configuration", "config_path", configPath)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := settings.Open(cfg.Settings.Type, cfg.Settings.Path, cfg.Settings.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	return &app{cfg: cfg, store: store, prefs: settings.NewPreferences(store)}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// discover returns the connections of one configured entry, or of all
// entries when entry is empty
func (a *app) discover(ctx context.Context, entry string) ([]resources.Connection, error) {
	var result []resources.Connection
	for _, connCfg := range a.cfg.Connections {
		if entry != "" && connCfg.Name != entry {
			continue
		}

		slog.Debug("Discovering connections", "name", connCfg.Name, "type", connCfg.Type)
		provider, err := resources.Get(connCfg.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to get provider for connection '%s': %w", connCfg.Name, err)
		}

		conns, err := provider.Discover(ctx, resources.ProviderConfig{
			Name:    connCfg.Name,
			URL:     connCfg.URL,
			Region:  connCfg.Region,
			Filters: connCfg.Filters,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to discover connections for '%s': %w", connCfg.Name, err)
		}
		slog.Info("Found connections", "name", connCfg.Name, "count", len(conns))
		result = append(result, conns...)
	}
	return result, nil
}

// connection resolves a connection by configured or discovered name. An
// empty name is accepted when exactly one connection exists.
func (a *app) connection(ctx context.Context, name string) (resources.Connection, error) {
	var entry string
	if _, ok := a.cfg.Connection(name); ok {
		entry = name
	}
	conns, err := a.discover(ctx, entry)
	if err != nil {
		return resources.Connection{}, err
	}

	if name == "" || entry != "" {
		if len(conns) == 1 {
			return conns[0], nil
		}
		return resources.Connection{}, fmt.Errorf("%d connections found, select one with --connection", len(conns))
	}
	for _, conn := range conns {
		if conn.Name == name {
			return conn, nil
		}
	}
	return resources.Connection{}, fmt.Errorf("connection '%s' not found", name)
}

// jolokiaOptions returns the configured request options, replaced by the
// stored options when the user saved some
func (a *app) jolokiaOptions(ctx context.Context) (jolokia.Options, error) {
	opts := a.cfg.Jolokia.Options()
	if _, ok, err := a.store.Get(ctx, settings.KeyJolokiaOptions); err != nil || !ok {
		return opts, err
	}
	stored, err := a.prefs.LoadJolokiaStoredOptions(ctx)
	if err != nil {
		return opts, err
	}
	return stored.Options(), nil
}

// refreshSettings returns whether auto refresh is on and its interval,
// with stored preferences taking precedence over the configuration
func (a *app) refreshSettings(ctx context.Context) (bool, time.Duration, error) {
	enabled := a.cfg.Refresh.Enabled
	interval := a.cfg.Refresh.Interval

	if _, ok, err := a.store.Get(ctx, settings.KeyAutoRefresh); err != nil {
		return false, 0, err
	} else if ok {
		if enabled, err = a.prefs.LoadAutoRefresh(ctx); err != nil {
			return false, 0, err
		}
	}
	if _, ok, err := a.store.Get(ctx, settings.KeyUpdateRate); err != nil {
		return false, 0, err
	} else if ok {
		rate, err := a.prefs.LoadUpdateRate(ctx)
		if err != nil {
			return false, 0, err
		}
		interval = time.Duration(rate) * time.Millisecond
	}
	return enabled, interval, nil
}

// session is an open connection to one agent
type session struct {
	conn      resources.Connection
	client    *jolokia.Client
	service   *discovery.Service
	workspace *discovery.Workspace
}

func (a *app) openSession(ctx context.Context, conn resources.Connection) (*session, error) {
	client, err := jolokia.NewClient(jolokia.ClientOptions{
		URL:      conn.URL,
		Timeout:  a.cfg.Jolokia.Timeout,
		Username: a.cfg.Jolokia.Username,
		Password: a.cfg.Jolokia.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for '%s': %w", conn.Name, err)
	}

	opts, err := a.jolokiaOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load Jolokia options: %w", err)
	}

	logger := slog.Default().With("connection", conn.Name)
	svc := discovery.NewService(client, discovery.Options{
		Request:   opts,
		RBACMBean: a.cfg.Jolokia.RBACMBean,
		Logger:    logger,
	})

	processors := discovery.NewProcessorRegistry()
	processors.Add("rbac", discovery.NewRightsProjector(svc, a.cfg.Jolokia.ACLMBean, logger))

	ws := discovery.NewWorkspace(svc, discovery.WorkspaceOptions{
		Conventions: a.cfg.Conventions,
		Processors:  processors,
		Logger:      logger,
	})

	return &session{conn: conn, client: client, service: svc, workspace: ws}, nil
}
