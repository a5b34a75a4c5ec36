package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/moepig/jmx-conf-gen/mbean"
)

// Shape identifies which list response format the agent returned.
type Shape int

const (
	// ShapeVerbose is the plain list response: domain -> property list -> descriptor.
	ShapeVerbose Shape = iota
	// ShapeCompact is the optimised response whose entries may reference a descriptor cache.
	ShapeCompact
)

func (s Shape) String() string {
	if s == ShapeCompact {
		return "compact"
	}
	return "verbose"
}

// Result is a reconciled listing.
type Result struct {
	Shape   Shape
	Domains mbean.Domains
	Skipped []error
}

// Reconciler converts both list response shapes into mbean.Domains. It keeps
// the descriptor cache of compact responses across calls, so later responses
// may reference descriptors sent earlier on the same connection.
type Reconciler struct {
	cache map[string]*mbean.MBeanInfo
}

// NewReconciler returns a reconciler with an empty descriptor cache.
func NewReconciler() *Reconciler {
	return &Reconciler{cache: make(map[string]*mbean.MBeanInfo)}
}

// Reset drops the descriptor cache.
func (r *Reconciler) Reset() {
	r.cache = make(map[string]*mbean.MBeanInfo)
}

// CacheSize returns the number of cached descriptors.
func (r *Reconciler) CacheSize() int {
	return len(r.cache)
}

type compactListing struct {
	Cache   map[string]*mbean.MBeanInfo           `json:"cache"`
	Domains map[string]map[string]json.RawMessage `json:"domains"`
}

// Unwind detects the shape of raw and restores it to full domains. path is
// the list path the response was requested for; entries of a verbose
// response arrive relative to it. Entries that cannot be resolved are
// skipped and reported in Result.Skipped.
func (r *Reconciler) Unwind(raw json.RawMessage, path []string) (*Result, error) {
	if isCompact(raw) {
		var listing compactListing
		if err := json.Unmarshal(raw, &listing); err != nil {
			return nil, fmt.Errorf("failed to decode compact listing: %w", err)
		}
		return r.unwindCompact(&listing), nil
	}
	return r.unwindVerbose(raw, path)
}

// isCompact reports whether raw is an object with exactly a cache member
// and an object-valued domains member.
func isCompact(raw json.RawMessage) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return false
	}
	_, hasCache := top["cache"]
	domains, hasDomains := top["domains"]
	if len(top) != 2 || !hasCache || !hasDomains {
		return false
	}
	trimmed := bytes.TrimSpace(domains)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (r *Reconciler) unwindCompact(listing *compactListing) *Result {
	for key, info := range listing.Cache {
		if info != nil {
			r.cache[key] = info
		}
	}

	res := &Result{Shape: ShapeCompact, Domains: make(mbean.Domains)}
	for _, domain := range sortedDomainKeys(listing.Domains) {
		entries := listing.Domains[domain]
		out := make(mbean.Domain, len(entries))
		for _, propList := range sortedEntryKeys(entries) {
			info, err := r.resolve(entries[propList])
			if err != nil {
				res.Skipped = append(res.Skipped, &EntryError{Domain: domain, PropList: propList, Err: err})
				continue
			}
			out[propList] = info
		}
		res.Domains[domain] = out
	}
	return res
}

func (r *Reconciler) resolve(entry json.RawMessage) (*mbean.MBeanInfo, error) {
	trimmed := bytes.TrimSpace(entry)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var key string
		if err := json.Unmarshal(trimmed, &key); err != nil {
			return nil, err
		}
		cached, ok := r.cache[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrDanglingReference, key)
		}
		// entries sharing a cached descriptor get their own copy so that
		// invocation rights can be applied per MBean
		info := cached.Clone()
		info.InferRights()
		return info, nil
	}
	return decodeDescriptor(trimmed)
}

func decodeDescriptor(raw json.RawMessage) (*mbean.MBeanInfo, error) {
	var info mbean.MBeanInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	if info.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrDescriptorError, info.Error)
	}
	info.InferRights()
	return &info, nil
}

func (r *Reconciler) unwindVerbose(raw json.RawMessage, path []string) (*Result, error) {
	res := &Result{Shape: ShapeVerbose, Domains: make(mbean.Domains)}

	switch len(path) {
	case 0:
		var domains map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &domains); err != nil {
			return nil, fmt.Errorf("failed to decode listing: %w", err)
		}
		for domain, entries := range domains {
			res.Domains[domain] = decodeEntries(domain, entries, res)
		}
	case 1:
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode listing for %s: %w", path[0], err)
		}
		res.Domains[path[0]] = decodeEntries(path[0], entries, res)
	case 2:
		entries := map[string]json.RawMessage{path[1]: raw}
		res.Domains[path[0]] = decodeEntries(path[0], entries, res)
	default:
		return nil, fmt.Errorf("unsupported list path depth %d", len(path))
	}
	return res, nil
}

func decodeEntries(domain string, entries map[string]json.RawMessage, res *Result) mbean.Domain {
	out := make(mbean.Domain, len(entries))
	for _, propList := range sortedEntryKeys(entries) {
		info, err := decodeDescriptor(entries[propList])
		if err != nil {
			res.Skipped = append(res.Skipped, &EntryError{Domain: domain, PropList: propList, Err: err})
			continue
		}
		out[propList] = info
	}
	return out
}

// MergeDomains adds every entry of src to dst.
func MergeDomains(dst, src mbean.Domains) {
	for domain, entries := range src {
		target, ok := dst[domain]
		if !ok {
			target = make(mbean.Domain, len(entries))
			dst[domain] = target
		}
		for propList, info := range entries {
			target[propList] = info
		}
	}
}

func sortedDomainKeys(m map[string]map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedEntryKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
