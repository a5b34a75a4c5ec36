package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moepig/jmx-conf-gen/discovery"
	"github.com/moepig/jmx-conf-gen/jolokia"
	"github.com/moepig/jmx-conf-gen/query"
)

// Environment variables overriding the file.
const (
	EnvMaxDepth          = "JMX_CONF_GEN_MAX_DEPTH"
	EnvMaxCollectionSize = "JMX_CONF_GEN_MAX_COLLECTION_SIZE"
	EnvConventions       = "JMX_CONF_GEN_CONVENTIONS"
	EnvRefreshEnabled    = "JMX_CONF_GEN_REFRESH_ENABLED"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultSettingsType = "memory"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	slog.Debug("Read config file", "path", path, "bytes", len(data))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	slog.Debug("Parsed config", "connections_count", len(cfg.Connections), "outputs_count", len(cfg.Outputs))

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills unset values with the agent defaults
func applyDefaults(cfg *Config) {
	if cfg.Jolokia.MaxDepth == 0 {
		cfg.Jolokia.MaxDepth = jolokia.DefaultMaxDepth
	}
	if cfg.Jolokia.MaxCollectionSize == 0 {
		cfg.Jolokia.MaxCollectionSize = jolokia.DefaultMaxCollectionSize
	}
	if cfg.Jolokia.Timeout == 0 {
		cfg.Jolokia.Timeout = defaultTimeout
	}
	if cfg.Jolokia.RBACMBean == "" {
		cfg.Jolokia.RBACMBean = discovery.DefaultRBACMBean
	}
	if cfg.Jolokia.ACLMBean == "" {
		cfg.Jolokia.ACLMBean = discovery.DefaultACLMBean
	}
	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = time.Duration(jolokia.DefaultUpdateRate) * time.Millisecond
	}
	if cfg.Settings.Type == "" {
		cfg.Settings.Type = defaultSettingsType
	}
}

// applyEnv applies the environment overrides
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvMaxDepth); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxDepth, err)
		}
		cfg.Jolokia.MaxDepth = n
	}
	if v, ok := os.LookupEnv(EnvMaxCollectionSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxCollectionSize, err)
		}
		cfg.Jolokia.MaxCollectionSize = n
	}
	if v, ok := os.LookupEnv(EnvConventions); ok {
		if err := json.Unmarshal([]byte(v), &cfg.Conventions); err != nil {
			return fmt.Errorf("%s: %w", EnvConventions, err)
		}
	}
	if v, ok := os.LookupEnv(EnvRefreshEnabled); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRefreshEnabled, err)
		}
		cfg.Refresh.Enabled = enabled
	}
	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("version is required")
	}

	if len(cfg.Connections) == 0 {
		return fmt.Errorf("at least one connection must be defined")
	}

	// Validate connections
	connectionNames := make(map[string]bool)
	for i, conn := range cfg.Connections {
		if conn.Name == "" {
			return fmt.Errorf("connection[%d]: name is required", i)
		}
		if conn.Type == "" {
			return fmt.Errorf("connection[%d]: type is required", i)
		}
		if connectionNames[conn.Name] {
			return fmt.Errorf("connection[%d]: duplicate connection name: %s", i, conn.Name)
		}
		connectionNames[conn.Name] = true
	}

	if cfg.Jolokia.MaxDepth < 0 {
		return fmt.Errorf("jolokia.max_depth must be positive")
	}
	if cfg.Jolokia.MaxCollectionSize < 0 {
		return fmt.Errorf("jolokia.max_collection_size must be positive")
	}
	if cfg.Refresh.Interval < 0 {
		return fmt.Errorf("refresh.interval must be positive")
	}

	for domain, keys := range cfg.Conventions {
		if len(keys) == 0 {
			return fmt.Errorf("conventions.%s: at least one key is required", domain)
		}
	}

	switch cfg.Settings.Type {
	case "memory", "redis":
	case "file":
		if cfg.Settings.Path == "" {
			return fmt.Errorf("settings.path is required for file settings")
		}
	default:
		return fmt.Errorf("settings.type must be memory, file or redis: %s", cfg.Settings.Type)
	}

	// Validate outputs
	for i, out := range cfg.Outputs {
		if out.Template == "" && out.Check == nil {
			return fmt.Errorf("output[%d]: template or check is required", i)
		}
		if out.Template != "" && out.Check != nil {
			return fmt.Errorf("output[%d]: template and check are mutually exclusive", i)
		}
		if out.OutputFile == "" {
			return fmt.Errorf("output[%d]: output_file is required", i)
		}
		if out.Data.ConnectionName == "" {
			return fmt.Errorf("output[%d]: data.connection_name is required", i)
		}
		// Check connection reference
		if !connectionNames[out.Data.ConnectionName] {
			return fmt.Errorf("output[%d]: connection_name '%s' not found in connections", i, out.Data.ConnectionName)
		}
		if out.Data.Filter != "" {
			if _, err := query.Compile(out.Data.Filter); err != nil {
				return fmt.Errorf("output[%d]: %w", i, err)
			}
		}
	}

	return nil
}

// Connection returns the connection definition with the given name
func (c *Config) Connection(name string) (ConnectionConfig, bool) {
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, true
		}
	}
	return ConnectionConfig{}, false
}
