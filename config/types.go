package config

import (
	"time"

	"github.com/moepig/jmx-conf-gen/jolokia"
	"github.com/moepig/jmx-conf-gen/mbean"
	"github.com/moepig/jmx-conf-gen/renderer"
)

// Config represents the entire configuration file
type Config struct {
	Version     string             `yaml:"version"`
	Connections []ConnectionConfig `yaml:"connections"`
	Jolokia     JolokiaConfig      `yaml:"jolokia"`
	Refresh     RefreshConfig      `yaml:"refresh"`
	Conventions mbean.Conventions  `yaml:"conventions"`
	Settings    SettingsConfig     `yaml:"settings"`
	Outputs     []OutputConfig     `yaml:"outputs"`
}

// ConnectionConfig represents a connection definition
type ConnectionConfig struct {
	Name    string                 `yaml:"name"`
	Type    string                 `yaml:"type"`
	URL     string                 `yaml:"url"`
	Region  string                 `yaml:"region"`
	Filters map[string]interface{} `yaml:"filters"`
}

// JolokiaConfig holds the request options passed through to the agents
type JolokiaConfig struct {
	MaxDepth          int           `yaml:"max_depth"`
	MaxCollectionSize int           `yaml:"max_collection_size"`
	Timeout           time.Duration `yaml:"timeout"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	RBACMBean         string        `yaml:"rbac_mbean"`
	ACLMBean          string        `yaml:"acl_mbean"`
}

// Options returns the request options.
func (c JolokiaConfig) Options() jolokia.Options {
	return jolokia.Options{MaxDepth: c.MaxDepth, MaxCollectionSize: c.MaxCollectionSize}
}

// RefreshConfig controls periodic tree refresh
type RefreshConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// SettingsConfig selects the settings store
type SettingsConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

// OutputConfig represents an output definition
type OutputConfig struct {
	Template   string     `yaml:"template"`
	OutputFile string     `yaml:"output_file"`
	Data       OutputData `yaml:"data"`

	// Check builds the file without a template; exclusive with Template
	Check *renderer.CheckConfig `yaml:"check"`
}

// OutputData selects the MBeans passed to a template
type OutputData struct {
	ConnectionName string                 `yaml:"connection_name"`
	Domain         string                 `yaml:"domain"`
	Filter         string                 `yaml:"filter"`
	Static         map[string]interface{} `yaml:"static"`
}
