package renderer

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// CheckConfig describes a check file built without a template: one instance
// per connection with an include entry per MBean
type CheckConfig struct {
	// InitConfig is written as init_config unchanged
	InitConfig map[string]interface{} `yaml:"init_config"`

	// InstanceTemplate is copied into every instance
	InstanceTemplate map[string]interface{} `yaml:"instance_template"`

	// CheckTags maps check tag names to connection tag keys, e.g.
	// env: Environment turns the connection tag Environment=production
	// into env:production
	CheckTags map[string]string `yaml:"check_tags"`
}

// GenerateCheck builds the check file for data
func GenerateCheck(data TemplateData, cfg CheckConfig) ([]byte, error) {
	output := make(map[string]interface{})
	if cfg.InitConfig != nil {
		output["init_config"] = cfg.InitConfig
	} else {
		output["init_config"] = nil
	}

	instances := make([]interface{}, 0, len(data.Connections))
	for _, conn := range data.Connections {
		instances = append(instances, buildInstance(conn, cfg))
	}
	output["instances"] = instances

	yamlBytes, err := yaml.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal check config to YAML: %w", err)
	}
	return yamlBytes, nil
}

func buildInstance(conn ConnectionData, cfg CheckConfig) map[string]interface{} {
	instance := make(map[string]interface{}, len(cfg.InstanceTemplate)+4)
	for k, v := range cfg.InstanceTemplate {
		instance[k] = v
	}

	instance["name"] = conn.Name
	instance["jolokia_url"] = conn.URL

	if tags := buildTags(conn, cfg, instance); len(tags) > 0 {
		instance["tags"] = tags
	}

	includes := make([]interface{}, 0, len(conn.MBeans))
	for _, m := range conn.MBeans {
		include := map[string]interface{}{
			"domain": m.Domain,
			"bean":   m.ObjectName,
		}
		var attrs []string
		for _, a := range numericAttributes(m.Attributes) {
			attrs = append(attrs, a.Name)
		}
		if len(attrs) > 0 {
			include["attribute"] = attrs
		}
		includes = append(includes, map[string]interface{}{"include": include})
	}
	instance["conf"] = includes
	return instance
}

// buildTags keeps the template's tags and appends the mapped connection tags
func buildTags(conn ConnectionData, cfg CheckConfig, instance map[string]interface{}) []string {
	tags := []string{}
	if existing, ok := instance["tags"].([]interface{}); ok {
		for _, tag := range existing {
			if s, ok := tag.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	keys := make([]string, 0, len(cfg.CheckTags))
	for k := range cfg.CheckTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, checkTag := range keys {
		if value, ok := conn.Tags[cfg.CheckTags[checkTag]]; ok {
			tags = append(tags, fmt.Sprintf("%s:%s", checkTag, value))
		}
	}
	return tags
}
