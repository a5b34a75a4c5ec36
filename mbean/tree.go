package mbean

import (
	"errors"
	"log/slog"
	"sort"
)

// Tree is the MBean forest of one connection: one root folder per domain.
type Tree struct {
	id          string
	roots       []*Node
	conventions Conventions
}

// NewTree returns an empty tree.
func NewTree(id string, conv Conventions) *Tree {
	return &Tree{id: id, conventions: conv}
}

// NewTreeFromNodes wraps existing root nodes.
func NewTreeFromNodes(id string, nodes []*Node) *Tree {
	return &Tree{id: id, roots: nodes}
}

// Build creates a tree from a canonical listing. Entries whose property
// list cannot be placed are skipped; the returned error joins an
// *EntryError per skipped entry and the tree is never nil.
func Build(id string, domains Domains, conv Conventions) (*Tree, error) {
	t := NewTree(id, conv)
	var errs []error
	for _, name := range sortedKeys(domains) {
		root := t.getOrCreateRoot(name)
		errs = append(errs, populateDomain(root, domains[name], conv)...)
	}
	t.sort()
	return t, errors.Join(errs...)
}

func populateDomain(root *Node, domain Domain, conv Conventions) []error {
	var errs []error
	propLists := make([]string, 0, len(domain))
	for p := range domain {
		propLists = append(propLists, p)
	}
	sort.Strings(propLists)

	for _, propList := range propLists {
		if err := root.PopulateMBean(propList, domain[propList], conv); err != nil {
			slog.Warn("Skipping MBean", "domain", root.Name, "property_list", propList, "error", err)
			errs = append(errs, &EntryError{Domain: root.Name, PropList: propList, Err: err})
		}
	}
	return errs
}

func sortedKeys(domains Domains) []string {
	names := make([]string, 0, len(domains))
	for name := range domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Tree) getOrCreateRoot(name string) *Node {
	if root := t.Get(name); root != nil {
		return root
	}
	root := NewNode(nil, name, true)
	t.roots = append(t.roots, root)
	return root
}

func (t *Tree) sort() {
	sort.SliceStable(t.roots, func(i, j int) bool {
		return less(t.roots[i], t.roots[j])
	})
	for _, root := range t.roots {
		root.Sort(true)
		root.InitID(true)
	}
}

// Merge replaces the subtree of one domain, leaving every other root untouched.
// An empty listing removes the domain.
func (t *Tree) Merge(domainName string, domain Domain) error {
	var root *Node
	var errs []error
	if len(domain) > 0 {
		root = NewNode(nil, domainName, true)
		errs = populateDomain(root, domain, t.conventions)
		root.Sort(true)
		root.InitID(true)
	}

	replaced := false
	for i, r := range t.roots {
		if r.Name != domainName {
			continue
		}
		if root == nil {
			t.roots = append(t.roots[:i], t.roots[i+1:]...)
		} else {
			t.roots[i] = root
		}
		replaced = true
		break
	}
	if !replaced && root != nil {
		t.roots = append(t.roots, root)
		sort.SliceStable(t.roots, func(i, j int) bool {
			return less(t.roots[i], t.roots[j])
		})
	}
	return errors.Join(errs...)
}

// ShallowCopy returns a tree sharing the nodes of t but owning its root
// slice, so Merge on the copy leaves t unchanged.
func (t *Tree) ShallowCopy(id string) *Tree {
	roots := make([]*Node, len(t.roots))
	copy(roots, t.roots)
	return &Tree{id: id, roots: roots, conventions: t.conventions}
}

// ID returns the tree identifier.
func (t *Tree) ID() string {
	return t.id
}

// Conventions returns the grouping conventions the tree was built with.
func (t *Tree) Conventions() Conventions {
	return t.conventions
}

// Roots returns the domain roots.
func (t *Tree) Roots() []*Node {
	out := make([]*Node, len(t.roots))
	copy(out, t.roots)
	return out
}

// Get returns the root for a domain, or nil.
func (t *Tree) Get(name string) *Node {
	for _, r := range t.roots {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// IsEmpty reports whether the tree holds no MBean at all.
func (t *Tree) IsEmpty() bool {
	return t.Find(func(n *Node) bool { return n.IsMBean() }) == nil
}

// Find returns the first node in any domain accepted by filter.
func (t *Tree) Find(filter FilterFunc) *Node {
	for _, r := range t.roots {
		if found := r.Find(filter); found != nil {
			return found
		}
	}
	return nil
}

// FindMBeans returns the MBeans of a domain whose properties contain the filter.
func (t *Tree) FindMBeans(domainName string, properties map[string]string) []*Node {
	root := t.Get(domainName)
	if root == nil {
		return nil
	}
	return root.FindMBeans(properties)
}

// Navigate walks down from the domain root named by the first element.
func (t *Tree) Navigate(namePath ...string) *Node {
	if len(namePath) == 0 {
		return nil
	}
	root := t.Get(namePath[0])
	if root == nil {
		return nil
	}
	return root.Navigate(namePath[1:]...)
}

// ForEach calls fn on every node along namePath, the domain root included.
func (t *Tree) ForEach(namePath []string, fn func(*Node)) {
	if len(namePath) == 0 {
		return
	}
	root := t.Get(namePath[0])
	if root == nil {
		return
	}
	fn(root)
	root.ForEach(namePath[1:], fn)
}

// Flatten returns every MBean keyed by canonical ObjectName.
func (t *Tree) Flatten() map[string]*Node {
	mbeans := make(map[string]*Node)
	for _, r := range t.roots {
		r.Flatten(mbeans)
	}
	return mbeans
}

// Filter returns a new tree holding the matching nodes and their folders.
func (t *Tree) Filter(filter FilterFunc) *Tree {
	filtered := &Tree{id: t.id, conventions: t.conventions}
	for _, r := range t.roots {
		if clone := r.FilterClone(filter); clone != nil {
			filtered.roots = append(filtered.roots, clone)
		}
	}
	return filtered
}

// Walk calls fn on every node of the tree, depth first.
func (t *Tree) Walk(fn func(*Node)) {
	for _, r := range t.roots {
		r.walk(fn)
	}
}
