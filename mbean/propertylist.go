package mbean

import (
	"sort"
	"strings"
)

// DefaultLeadingKeys are the property keys moved to the front of a property
// list when a domain has no convention of its own.
var DefaultLeadingKeys = []string{"type"}

// Conventions maps a domain name to the property keys that determine its
// top grouping folders, in order.
type Conventions map[string][]string

// LeadingKeys returns the grouping keys for the domain.
func (c Conventions) LeadingKeys(domain string) []string {
	if keys, ok := c[domain]; ok {
		return keys
	}
	return DefaultLeadingKeys
}

// Property is a single key/value pair of an ObjectName.
type Property struct {
	Key   string
	Value string
}

// PropertyList is the parsed property list of an ObjectName.
type PropertyList struct {
	domain string
	source string
	props  []Property
	index  map[string]string
	paths  []Property
}

// ParsePropertyList parses the part of an ObjectName after "domain:".
// The grouping order of the result follows the domain's leading keys.
func ParsePropertyList(domain, propList string, conv Conventions) (*PropertyList, error) {
	props, err := parseProperties(propList)
	if err != nil {
		return nil, err
	}

	index := make(map[string]string, len(props))
	for _, p := range props {
		index[p.Key] = p.Value
	}

	return &PropertyList{
		domain: domain,
		source: propList,
		props:  props,
		index:  index,
		paths:  reorder(props, conv.LeadingKeys(domain)),
	}, nil
}

func parseProperties(s string) ([]Property, error) {
	var props []Property
	seen := make(map[string]bool)

	i := 0
	for {
		start := i
		eq := -1
		for i < len(s) && s[i] != ',' {
			if s[i] == '=' {
				eq = i
				break
			}
			i++
		}
		if eq < 0 {
			return nil, &PropertyListError{Input: s, Pos: start, Reason: "segment lacks '='"}
		}
		key := s[start:eq]
		if key == "" {
			return nil, &PropertyListError{Input: s, Pos: start, Reason: "empty key"}
		}
		if seen[key] {
			return nil, &PropertyListError{Input: s, Pos: start, Reason: "duplicate key " + key}
		}
		seen[key] = true

		i = eq + 1
		var value string
		if i < len(s) && s[i] == '"' {
			v, next, err := parseQuoted(s, i)
			if err != nil {
				return nil, err
			}
			if next < len(s) && s[next] != ',' {
				return nil, &PropertyListError{Input: s, Pos: next, Reason: "unexpected character after quoted value"}
			}
			value, i = v, next
		} else {
			vstart := i
			for i < len(s) && s[i] != ',' {
				i++
			}
			value = s[vstart:i]
		}
		props = append(props, Property{Key: key, Value: value})

		if i >= len(s) {
			return props, nil
		}
		// skip the comma
		i++
	}
}

// parseQuoted reads a quoted value starting at the opening quote and
// returns the unescaped value plus the index after the closing quote.
func parseQuoted(s string, open int) (string, int, error) {
	var b strings.Builder
	for i := open + 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, &PropertyListError{Input: s, Pos: i, Reason: "dangling escape"}
			}
			i++
			switch e := s[i]; e {
			case '"', '\\', '*', '?':
				b.WriteByte(e)
			case 'n':
				b.WriteByte('\n')
			default:
				return "", 0, &PropertyListError{Input: s, Pos: i, Reason: "invalid escape"}
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, &PropertyListError{Input: s, Pos: open, Reason: "unterminated quote"}
}

// reorder moves the leading keys that are present to the front, keeping
// the relative order of every other property.
func reorder(props []Property, leading []string) []Property {
	paths := make([]Property, 0, len(props))
	moved := make(map[string]bool, len(leading))
	for _, key := range leading {
		for _, p := range props {
			if p.Key == key && !moved[key] {
				paths = append(paths, p)
				moved[key] = true
			}
		}
	}
	for _, p := range props {
		if !moved[p.Key] {
			paths = append(paths, p)
		}
	}
	return paths
}

// Domain returns the ObjectName domain the list belongs to.
func (l *PropertyList) Domain() string {
	return l.domain
}

// Get returns the value for key.
func (l *PropertyList) Get(key string) (string, bool) {
	v, ok := l.index[key]
	return v, ok
}

// Properties returns the properties in source order.
func (l *PropertyList) Properties() []Property {
	out := make([]Property, len(l.props))
	copy(out, l.props)
	return out
}

// Map returns the key/value mapping.
func (l *PropertyList) Map() map[string]string {
	out := make(map[string]string, len(l.index))
	for k, v := range l.index {
		out[k] = v
	}
	return out
}

// Paths returns the values in grouping order; all but the last name folders.
func (l *PropertyList) Paths() []string {
	out := make([]string, len(l.paths))
	for i, p := range l.paths {
		out[i] = p.Value
	}
	return out
}

// Match reports whether every filter key exists with exactly the same value.
func (l *PropertyList) Match(filter map[string]string) bool {
	for k, v := range filter {
		if got, ok := l.index[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Equal compares domain and key/value mapping, ignoring order.
func (l *PropertyList) Equal(other *PropertyList) bool {
	if other == nil || l.domain != other.domain || len(l.index) != len(other.index) {
		return false
	}
	return l.Match(other.index)
}

// Canonical returns the property list with keys sorted and values quoted
// where needed. Parsing it again yields the same mapping.
func (l *PropertyList) Canonical() string {
	keys := make([]string, 0, len(l.index))
	for k := range l.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + quoteValue(l.index[k])
	}
	return strings.Join(parts, ",")
}

// ObjectName returns the name as it was listed by the server.
func (l *PropertyList) ObjectName() string {
	return l.domain + ":" + l.source
}

// CanonicalName returns the domain followed by the canonical property list.
func (l *PropertyList) CanonicalName() string {
	return l.domain + ":" + l.Canonical()
}

func (l *PropertyList) String() string {
	return l.ObjectName()
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ",=:\"*?\\\n") {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '"', '\\', '*', '?':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
