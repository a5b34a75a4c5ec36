package resources

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]Provider)
	mu       sync.RWMutex
)

// Register registers a provider for a connection type
func Register(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	registry[provider.Type()] = provider
}

// Get retrieves the provider for a connection type
func Get(connectionType string) (Provider, error) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := registry[connectionType]
	if !ok {
		return nil, fmt.Errorf("provider not found for connection type: %s", connectionType)
	}
	return provider, nil
}

// List returns all registered connection types in sorted order
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// StringMap reads a map of strings from a filter value decoded from YAML.
// Non-string values are skipped.
func StringMap(filters map[string]interface{}, key string) (map[string]string, error) {
	out := make(map[string]string)
	raw, ok := filters[key]
	if !ok || raw == nil {
		return out, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("filters.%s must be a map", key)
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// StringList reads a list of strings from a filter value decoded from YAML.
func StringList(filters map[string]interface{}, key string) ([]string, error) {
	raw, ok := filters[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("filters.%s must be a list", key)
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("filters.%s must contain strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
