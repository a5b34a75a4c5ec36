package mbean

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// IDSeparator joins the path segments of a node ID.
const IDSeparator = "-"

// Presentation hints carried by nodes.
const (
	IconFolder = "folder"
	IconMBean  = "mbean"
	IconLocked = "locked"
)

// FilterFunc selects nodes.
type FilterFunc func(n *Node) bool

type childKey struct {
	name   string
	folder bool
}

// Node is either a folder, an MBean, or both: an MBean whose property list
// is also the prefix of other MBeans gets a folder twin with the same name.
type Node struct {
	Name string
	ID   string

	ObjectName   string
	MBean        *MBeanInfo
	PropertyList *PropertyList

	Icon         string
	ExpandedIcon string

	folder   bool
	parent   *Node
	children []*Node
	index    map[childKey]*Node
	metadata map[string]string
}

// NewNode creates a detached node. A nil parent makes it a root.
func NewNode(parent *Node, name string, folder bool) *Node {
	n := &Node{
		Name:     name,
		folder:   folder,
		parent:   parent,
		metadata: make(map[string]string),
	}
	n.ID = n.generateID()
	if folder {
		n.Icon = IconFolder
		n.index = make(map[childKey]*Node)
	} else {
		n.Icon = IconMBean
	}
	return n
}

// idEscaper encodes the separator inside names so that joined paths stay
// unique.
var idEscaper = strings.NewReplacer("%", "%25", IDSeparator, "%2D", " ", "%20")

func (n *Node) generateID() string {
	id := idEscaper.Replace(n.Name)
	if n.parent != nil {
		id = n.parent.ID + IDSeparator + id
		if n.folder {
			if _, twin := n.parent.index[childKey{n.Name, false}]; twin {
				id += IDSeparator + "folder"
			}
		}
	}
	return id
}

// InitID recomputes the ID from the current path.
func (n *Node) InitID(recursive bool) {
	n.ID = n.generateID()
	if recursive {
		for _, c := range n.children {
			c.InitID(true)
		}
	}
}

// IsFolder reports whether the node groups children.
func (n *Node) IsFolder() bool {
	return n.folder
}

// IsMBean reports whether the node carries an MBean.
func (n *Node) IsMBean() bool {
	return n.MBean != nil || n.PropertyList != nil
}

// Parent returns the parent node, nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// PopulateMBean parses propList and creates the folder chain and the MBean
// leaf for it below this node, which must be a domain root.
func (n *Node) PopulateMBean(propList string, info *MBeanInfo, conv Conventions) error {
	props, err := ParsePropertyList(n.Name, propList, conv)
	if err != nil {
		return err
	}
	return n.createMBeanNode(props.Paths(), props, info)
}

func (n *Node) createMBeanNode(paths []string, props *PropertyList, info *MBeanInfo) error {
	if len(paths) == 0 {
		return fmt.Errorf("%w: no path for %s", ErrMalformedPropertyList, props.ObjectName())
	}
	if len(paths) == 1 {
		leaf, err := n.Create(paths[0], false)
		if err != nil {
			return fmt.Errorf("failed to create node for %s: %w", props.ObjectName(), err)
		}
		leaf.configureMBean(props, info)
		return nil
	}
	child, err := n.GetOrCreate(paths[0], true)
	if err != nil {
		return err
	}
	return child.createMBeanNode(paths[1:], props, info)
}

func (n *Node) configureMBean(props *PropertyList, info *MBeanInfo) {
	n.ObjectName = props.ObjectName()
	n.PropertyList = props
	n.MBean = info
	if info != nil {
		info.EnsureOpByString()
	}
	n.applyCanInvoke()
}

func (n *Node) applyCanInvoke() {
	if n.MBean != nil && n.MBean.CanInvoke != nil && !*n.MBean.CanInvoke {
		n.Icon = IconLocked
		n.ExpandedIcon = IconLocked
	}
}

// CopyTo clones the node, its metadata, MBean and descendants under a new name.
func (n *Node) CopyTo(name string) *Node {
	c := NewNode(nil, name, n.folder)
	n.copyInto(c)
	c.InitID(true)
	return c
}

func (n *Node) copyInto(c *Node) {
	c.Icon = n.Icon
	c.ExpandedIcon = n.ExpandedIcon
	c.ObjectName = n.ObjectName
	c.PropertyList = n.PropertyList
	c.MBean = n.MBean.Clone()
	for k, v := range n.metadata {
		c.metadata[k] = v
	}
	for _, child := range n.children {
		cc := NewNode(c, child.Name, child.folder)
		child.copyInto(cc)
		c.attach(cc)
	}
}

// FindChildren returns the children named name: at most a folder and an MBean.
func (n *Node) FindChildren(name string) []*Node {
	var found []*Node
	if f, ok := n.index[childKey{name, true}]; ok {
		found = append(found, f)
	}
	if m, ok := n.index[childKey{name, false}]; ok {
		found = append(found, m)
	}
	return found
}

// Get returns the child with the given name and kind, or nil.
func (n *Node) Get(name string, folder bool) *Node {
	return n.index[childKey{name, folder}]
}

// GetIndex returns the child at position i, or nil.
func (n *Node) GetIndex(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// Create adds a new child. It fails if a child of the same name and kind exists.
func (n *Node) Create(name string, folder bool) (*Node, error) {
	if n.index == nil {
		n.index = make(map[childKey]*Node)
	}
	if _, exists := n.index[childKey{name, folder}]; exists {
		return nil, fmt.Errorf("%w: %q (folder=%t) under %s", ErrDuplicateChild, name, folder, n.ID)
	}
	child := NewNode(n, name, folder)
	n.attach(child)
	return child, nil
}

// GetOrCreate returns the child with the given name and kind, creating it if missing.
func (n *Node) GetOrCreate(name string, folder bool) (*Node, error) {
	if child := n.Get(name, folder); child != nil {
		return child, nil
	}
	return n.Create(name, folder)
}

func (n *Node) attach(child *Node) {
	if n.index == nil {
		n.index = make(map[childKey]*Node)
	}
	child.parent = n
	n.children = append(n.children, child)
	n.index[childKey{child.Name, child.folder}] = child
	if !child.folder {
		if twin := n.index[childKey{child.Name, true}]; twin != nil {
			twin.InitID(true)
		}
	}
}

// Adopt moves child under this node, replacing a child of the same name and kind.
func (n *Node) Adopt(child *Node) {
	if child.parent != nil && child.parent != n {
		child.parent.RemoveChild(child)
	}
	if existing := n.Get(child.Name, child.folder); existing != nil && existing != child {
		n.RemoveChild(existing)
	}
	if n.Get(child.Name, child.folder) == nil {
		n.attach(child)
	}
	child.InitID(true)
}

// RemoveChildren detaches and returns all children.
func (n *Node) RemoveChildren() []*Node {
	removed := n.children
	for _, c := range removed {
		c.parent = nil
	}
	n.children = nil
	n.index = make(map[childKey]*Node)
	return removed
}

// RemoveChild detaches child and returns it, or nil if it is not a child.
func (n *Node) RemoveChild(child *Node) *Node {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			delete(n.index, childKey{c.Name, c.folder})
			c.parent = nil
			return c
		}
	}
	return nil
}

// Type returns the "type" metadata.
func (n *Node) Type() string {
	return n.metadata["type"]
}

// SetType sets the "type" metadata.
func (n *Node) SetType(t string) {
	n.metadata["type"] = t
}

// Metadata returns the metadata value for key.
func (n *Node) Metadata(key string) (string, bool) {
	v, ok := n.metadata[key]
	return v, ok
}

// AddMetadata attaches a metadata value.
func (n *Node) AddMetadata(key, value string) {
	n.metadata[key] = value
}

// Property returns an ObjectName property of an MBean node.
func (n *Node) Property(key string) (string, bool) {
	if n.PropertyList == nil {
		return "", false
	}
	return n.PropertyList.Get(key)
}

func less(a, b *Node) bool {
	if a.folder != b.folder {
		return a.folder
	}
	la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if la != lb {
		return la < lb
	}
	return a.Name < b.Name
}

// Sort orders children: folders first, then by case-insensitive name.
func (n *Node) Sort(recursive bool) {
	sort.SliceStable(n.children, func(i, j int) bool {
		return less(n.children[i], n.children[j])
	})
	if recursive {
		for _, c := range n.children {
			c.Sort(true)
		}
	}
}

// Path returns the names from the root down to this node.
func (n *Node) Path() []string {
	var path []string
	for cur := n; cur != nil; cur = cur.parent {
		path = append([]string{cur.Name}, path...)
	}
	return path
}

// Navigate walks down the given names, preferring folders over MBeans.
func (n *Node) Navigate(namePath ...string) *Node {
	cur := n
	for _, name := range namePath {
		children := cur.FindChildren(name)
		if len(children) == 0 {
			return nil
		}
		cur = children[0]
	}
	return cur
}

// ForEach calls fn on every node along namePath below this node.
func (n *Node) ForEach(namePath []string, fn func(*Node)) {
	cur := n
	for _, name := range namePath {
		children := cur.FindChildren(name)
		if len(children) == 0 {
			return
		}
		cur = children[0]
		fn(cur)
	}
}

// Find searches this node and its descendants depth first.
func (n *Node) Find(filter FilterFunc) *Node {
	if filter(n) {
		return n
	}
	for _, c := range n.children {
		if found := c.Find(filter); found != nil {
			return found
		}
	}
	return nil
}

// FindMBeans returns every MBean at or below this node whose properties
// contain the filter.
func (n *Node) FindMBeans(properties map[string]string) []*Node {
	var found []*Node
	n.walk(func(c *Node) {
		if c.Match(properties) {
			found = append(found, c)
		}
	})
	return found
}

// Match reports whether the node is an MBean whose properties contain the filter.
// Folder-only nodes never match.
func (n *Node) Match(properties map[string]string) bool {
	if n.PropertyList == nil {
		return false
	}
	return n.PropertyList.Match(properties)
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.walk(fn)
	}
}

// FindAncestors returns the chain of ancestors, nearest first.
func (n *Node) FindAncestors() []*Node {
	var ancestors []*Node
	for cur := n.parent; cur != nil; cur = cur.parent {
		ancestors = append(ancestors, cur)
	}
	return ancestors
}

// FindAncestor returns the nearest ancestor accepted by filter.
func (n *Node) FindAncestor(filter FilterFunc) *Node {
	for cur := n.parent; cur != nil; cur = cur.parent {
		if filter(cur) {
			return cur
		}
	}
	return nil
}

// FilterClone returns a copy holding only the matching nodes and the folders
// leading to them, or nil if nothing matches.
func (n *Node) FilterClone(filter FilterFunc) *Node {
	clone := n.filterClone(filter)
	if clone != nil {
		clone.InitID(true)
	}
	return clone
}

func (n *Node) filterClone(filter FilterFunc) *Node {
	var kept []*Node
	for _, c := range n.children {
		if fc := c.filterClone(filter); fc != nil {
			kept = append(kept, fc)
		}
	}
	if !filter(n) && len(kept) == 0 {
		return nil
	}
	clone := NewNode(nil, n.Name, n.folder)
	clone.Icon, clone.ExpandedIcon = n.Icon, n.ExpandedIcon
	clone.ObjectName = n.ObjectName
	clone.PropertyList = n.PropertyList
	clone.MBean = n.MBean
	for k, v := range n.metadata {
		clone.metadata[k] = v
	}
	for _, c := range kept {
		clone.attach(c)
	}
	return clone
}

// Flatten adds every MBean at or below this node to mbeans, keyed by
// canonical ObjectName.
func (n *Node) Flatten(mbeans map[string]*Node) {
	if n.PropertyList != nil {
		mbeans[n.PropertyList.CanonicalName()] = n
	}
	for _, c := range n.children {
		c.Flatten(mbeans)
	}
}

// IsRBACDecorated reports whether invocation rights were supplied for every
// operation and attribute. Nodes without an MBean are always decorated.
func (n *Node) IsRBACDecorated() bool {
	if n.MBean == nil {
		return true
	}
	return n.MBean.Rights == RightsDecorated
}

// UpdateInvocationRights records whether the server lets the caller invoke
// anything on the MBean and refreshes the presentation hint.
func (n *Node) UpdateInvocationRights(canInvoke bool) {
	if n.MBean == nil {
		return
	}
	n.MBean.CanInvoke = BoolPtr(canInvoke)
	if canInvoke {
		n.Icon = IconMBean
		n.ExpandedIcon = ""
		return
	}
	n.applyCanInvoke()
}

// ApplyRights fills the missing operation and attribute flags, marks the
// descriptor decorated, and updates the node-level right.
func (n *Node) ApplyRights(ops map[string]bool, attrs map[string]bool) {
	if n.MBean == nil {
		return
	}
	invokable := len(n.MBean.Op) == 0 && len(n.MBean.Attr) == 0
	for sig, op := range n.MBean.OpByString {
		if op.CanInvoke == nil {
			allowed, ok := ops[sig]
			if !ok {
				allowed = true
			}
			op.CanInvoke = BoolPtr(allowed)
		}
		if *op.CanInvoke {
			invokable = true
		}
	}
	for name, attr := range n.MBean.Attr {
		if attr.CanInvoke == nil {
			allowed, ok := attrs[name]
			if !ok {
				allowed = true
			}
			attr.CanInvoke = BoolPtr(allowed)
		}
		if *attr.CanInvoke {
			invokable = true
		}
	}
	n.MBean.Rights = RightsDecorated
	slog.Debug("Applied invocation rights", "object_name", n.ObjectName, "can_invoke", invokable)
	n.UpdateInvocationRights(invokable)
}

// HasOperations reports whether every named operation exists.
func (n *Node) HasOperations(names ...string) bool {
	if n.MBean == nil {
		return false
	}
	for _, name := range names {
		if _, ok := n.lookupOperation(name); !ok {
			return false
		}
	}
	return true
}

// HasInvokeRights reports whether every named operation exists and may be
// invoked. A bare name covers all overloads: one denied overload denies the
// name. Full signatures such as "start(int)" select a single overload.
// Flags missing on a node that is not decorated count as permitted.
func (n *Node) HasInvokeRights(names ...string) bool {
	if n.MBean == nil {
		return false
	}
	if n.MBean.CanInvoke != nil && !*n.MBean.CanInvoke {
		return false
	}
	for _, name := range names {
		ops, ok := n.lookupOperation(name)
		if !ok {
			return false
		}
		for _, op := range ops {
			if op.CanInvoke != nil && !*op.CanInvoke {
				return false
			}
		}
	}
	return true
}

// CanAccessAttribute reports whether the attribute exists and is not denied.
func (n *Node) CanAccessAttribute(name string) bool {
	if n.MBean == nil {
		return false
	}
	attr, ok := n.MBean.Attr[name]
	if !ok {
		return false
	}
	return attr.CanInvoke == nil || *attr.CanInvoke
}

func (n *Node) lookupOperation(name string) (Operations, bool) {
	if strings.HasSuffix(name, ")") {
		n.MBean.EnsureOpByString()
		op, ok := n.MBean.OpByString[name]
		if !ok {
			return nil, false
		}
		return Operations{op}, true
	}
	ops, ok := n.MBean.Op[name]
	return ops, ok && len(ops) > 0
}
