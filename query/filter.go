// Package query compiles CEL expressions into MBean tree filters.
//
// An expression sees one node at a time through these variables:
//
//	name        string               node name
//	id          string               node ID
//	domain      string               domain of the node's root
//	objectName  string               ObjectName, empty for folders
//	folder      bool                 node groups other nodes
//	mbean       bool                 node carries an MBean
//	props       map(string, string)  ObjectName properties
//	attributes  list(string)         attribute names
//	operations  list(string)         operation names
//
// For example: mbean && props.type == "Memory" && "Verbose" in attributes
package query

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/moepig/jmx-conf-gen/mbean"
)

// ErrInvalidExpression is returned for expressions that do not compile to a bool.
var ErrInvalidExpression = errors.New("invalid filter expression")

// Filter is a compiled node predicate.
type Filter struct {
	expr string
	prg  cel.Program
}

var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("objectName", cel.StringType),
		cel.Variable("folder", cel.BoolType),
		cel.Variable("mbean", cel.BoolType),
		cel.Variable("props", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("attributes", cel.ListType(cel.StringType)),
		cel.Variable("operations", cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create filter environment: %v", err))
	}
}

// Compile parses and checks expr.
func Compile(expr string) (*Filter, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: %q evaluates to %s, not bool", ErrInvalidExpression, expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Filter {
	f, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the expression against n. Evaluation errors, such as a
// missing map key, count as no match.
func (f *Filter) Match(n *mbean.Node) bool {
	out, _, err := f.prg.Eval(Activation(n))
	if err != nil {
		slog.Debug("Filter evaluation failed", "expr", f.expr, "node", n.ID, "error", err)
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Func returns the filter as an mbean.FilterFunc.
func (f *Filter) Func() mbean.FilterFunc {
	return f.Match
}

// Activation returns the variables an expression sees for n.
func Activation(n *mbean.Node) map[string]any {
	vars := map[string]any{
		"name":       n.Name,
		"id":         n.ID,
		"domain":     rootName(n),
		"objectName": n.ObjectName,
		"folder":     n.IsFolder(),
		"mbean":      n.IsMBean(),
		"props":      map[string]string{},
		"attributes": []string{},
		"operations": []string{},
	}
	if n.PropertyList != nil {
		vars["props"] = n.PropertyList.Map()
	}
	if n.MBean != nil {
		vars["attributes"] = n.MBean.AttributeNames()
		vars["operations"] = n.MBean.OperationNames()
	}
	return vars
}

func rootName(n *mbean.Node) string {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return n.Name
}
