package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/moepig/jmx-conf-gen/mbean"
)

// DefaultACLMBean answers canInvoke queries for MBeans the agent did not decorate.
const DefaultACLMBean = "hawtio:type=security,area=jmx,name=HawtioDummyJMXSecurity"

// Executor invokes MBean operations. *Service implements it.
type Executor interface {
	Execute(ctx context.Context, mbeanName, operation string, args ...interface{}) (interface{}, error)
}

// RightsProjector fills the invocation rights of MBeans that arrived
// without them by asking the ACL MBean in one call per tree.
type RightsProjector struct {
	exec     Executor
	aclMBean string
	logger   *slog.Logger
}

// NewRightsProjector creates a projector. An empty aclMBean selects DefaultACLMBean.
func NewRightsProjector(exec Executor, aclMBean string, logger *slog.Logger) *RightsProjector {
	if aclMBean == "" {
		aclMBean = DefaultACLMBean
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RightsProjector{exec: exec, aclMBean: aclMBean, logger: logger}
}

// Process decorates every MBean of tree that is not yet decorated.
// An agent without the ACL MBean permits everything.
func (p *RightsProjector) Process(ctx context.Context, tree *mbean.Tree) error {
	pending := make(map[string]*mbean.Node)
	query := make(map[string][]string)
	tree.Walk(func(n *mbean.Node) {
		if n.MBean == nil || n.IsRBACDecorated() {
			return
		}
		pending[n.ObjectName] = n
		n.MBean.EnsureOpByString()
		sigs := make([]string, 0, len(n.MBean.OpByString))
		for sig := range n.MBean.OpByString {
			sigs = append(sigs, sig)
		}
		sort.Strings(sigs)
		query[n.ObjectName] = sigs
	})
	if len(pending) == 0 {
		return nil
	}

	result, err := p.exec.Execute(ctx, p.aclMBean, "canInvoke(java.util.Map)", query)
	if err != nil {
		if !IsNotFound(err) {
			return fmt.Errorf("failed to query invocation rights: %w", err)
		}
		p.logger.Debug("ACL MBean not available, permitting all operations", "mbean", p.aclMBean)
		result = nil
	}

	answers, _ := result.(map[string]interface{})
	for objectName, node := range pending {
		ops := decodeCanInvoke(answers[objectName])
		node.ApplyRights(ops, nil)
	}
	p.logger.Debug("Projected invocation rights", "mbeans", len(pending))
	return nil
}

// decodeCanInvoke reads {"sig": {"CanInvoke": bool}} into sig -> allowed.
func decodeCanInvoke(v interface{}) map[string]bool {
	entries, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(entries))
	for sig, raw := range entries {
		switch e := raw.(type) {
		case bool:
			out[sig] = e
		case map[string]interface{}:
			if allowed, ok := e["CanInvoke"].(bool); ok {
				out[sig] = allowed
			}
		}
	}
	return out
}
