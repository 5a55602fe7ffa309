// Package binder resolves an unbound ast.Node expression tree against a
// variable table and a function signature table, producing a BoundExpression
// ready for a downstream evaluator (out of scope here, per spec §4.H).
package binder

import (
	"fmt"

	"github.com/purpleidea/poietic-core/internal/errwrap"
	"github.com/purpleidea/poietic-core/internal/expr/ast"
	"github.com/purpleidea/poietic-core/internal/object"
	"github.com/purpleidea/poietic-core/internal/variant"
)

// RefKind tags what a BoundRef resolves to.
type RefKind int

// The kinds of reference a bound identifier can carry.
const (
	RefObject RefKind = iota
	RefBuiltin
)

// BoundRef is what a variable name resolves to: either a design object or a
// built-in variable slot.
type BoundRef struct {
	Kind      RefKind
	ObjectID  object.ObjectID // meaningful when Kind == RefObject
	BuiltinID string          // meaningful when Kind == RefBuiltin
}

// FunctionSignature declares a callable function's arity, argument types and
// return type for binding-time validation.
type FunctionSignature struct {
	Name       string
	ArgTypes   []variant.ValueType
	ReturnType variant.ValueType
}

// BindErrorKind tags the specific binding failure a BindError carries.
type BindErrorKind int

// The binding error kinds spec §4.H names.
const (
	UnknownVariable BindErrorKind = iota
	UnknownFunction
	ArityMismatch
	ArgumentTypeMismatch
)

// String renders the canonical name of a BindErrorKind.
func (k BindErrorKind) String() string {
	switch k {
	case UnknownVariable:
		return "UnknownVariable"
	case UnknownFunction:
		return "UnknownFunction"
	case ArityMismatch:
		return "ArityMismatch"
	case ArgumentTypeMismatch:
		return "ArgumentTypeMismatch"
	default:
		return "unknown"
	}
}

// BindError is a binding failure naming the offending identifier.
type BindError struct {
	Kind BindErrorKind
	Name string
}

// Error implements the error interface.
func (e *BindError) Error() string { return fmt.Sprintf("%s(%q)", e.Kind, e.Name) }

// Errors returned by this package for non-BindError failure paths.
const (
	ErrNilTree = errwrap.ConstError("binder: nil expression tree")
)

// arithmeticFunctions is the fixed table operators desugar to, per spec
// §4.H ("operators are desugared to calls against a fixed table").
var arithmeticFunctions = map[string]FunctionSignature{
	"__add": {Name: "__add", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeDouble},
	"__sub": {Name: "__sub", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeDouble},
	"__mul": {Name: "__mul", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeDouble},
	"__div": {Name: "__div", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeDouble},
	"__mod": {Name: "__mod", ArgTypes: []variant.ValueType{variant.TypeInt, variant.TypeInt}, ReturnType: variant.TypeInt},
	"__lt":  {Name: "__lt", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeBool},
	"__le":  {Name: "__le", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeBool},
	"__gt":  {Name: "__gt", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeBool},
	"__ge":  {Name: "__ge", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeBool},
	"__eq":  {Name: "__eq", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeBool},
	"__ne":  {Name: "__ne", ArgTypes: []variant.ValueType{variant.TypeDouble, variant.TypeDouble}, ReturnType: variant.TypeBool},
	"__neg": {Name: "__neg", ArgTypes: []variant.ValueType{variant.TypeDouble}, ReturnType: variant.TypeDouble},
}

var opDesugar = map[string]string{
	"+": "__add", "-": "__sub", "*": "__mul", "/": "__div", "%": "__mod",
	"<": "__lt", "<=": "__le", ">": "__gt", ">=": "__ge", "==": "__eq", "!=": "__ne",
}

// BoundNode is a binder-resolved expression node.
type BoundNode interface {
	isBoundNode()
}

// BoundLiteral carries a literal numeric value.
type BoundLiteral struct {
	Value variant.Variant
}

func (BoundLiteral) isBoundNode() {}

// BoundVar carries a resolved variable reference.
type BoundVar struct {
	Name string
	Ref  BoundRef
}

func (BoundVar) isBoundNode() {}

// BoundCall carries a resolved function call, including desugared operators.
type BoundCall struct {
	Function FunctionSignature
	Args     []BoundNode
}

func (BoundCall) isBoundNode() {}

// BoundExpression is the result of binding: the resolved tree plus the set
// of every distinct variable name referenced anywhere in it.
type BoundExpression struct {
	Root BoundNode
	vars map[string]bool
}

// AllVariables returns every distinct variable name referenced in the bound
// tree, spec §4.H's `allVariables(): Set<name>`.
func (b *BoundExpression) AllVariables() map[string]bool {
	out := make(map[string]bool, len(b.vars))
	for k := range b.vars {
		out[k] = true
	}
	return out
}

// Binder resolves identifiers/calls against fixed variable and function
// tables.
type Binder struct {
	Variables map[string]BoundRef
	Functions map[string]FunctionSignature
}

// New builds a Binder over the given variable and user-function tables. The
// fixed arithmetic/comparison operator table is always available in
// addition to whatever is passed in functions.
func New(variables map[string]BoundRef, functions map[string]FunctionSignature) *Binder {
	return &Binder{Variables: variables, Functions: functions}
}

// Bind resolves tree into a BoundExpression, or returns the first BindError
// encountered (depth-first, left to right).
func (b *Binder) Bind(tree ast.Node) (*BoundExpression, error) {
	if tree == nil {
		return nil, ErrNilTree
	}
	vars := make(map[string]bool)
	root, err := b.bindNode(tree, vars)
	if err != nil {
		return nil, err
	}
	return &BoundExpression{Root: root, vars: vars}, nil
}

func (b *Binder) bindNode(n ast.Node, vars map[string]bool) (BoundNode, error) {
	switch node := n.(type) {
	case *ast.IntLit:
		return BoundLiteral{Value: variant.Int(node.Value)}, nil
	case *ast.DoubleLit:
		return BoundLiteral{Value: variant.Double(node.Value)}, nil
	case *ast.Paren:
		return b.bindNode(node.Inner, vars)
	case *ast.Var:
		ref, ok := b.Variables[node.Name]
		if !ok {
			return nil, &BindError{Kind: UnknownVariable, Name: node.Name}
		}
		vars[node.Name] = true
		return BoundVar{Name: node.Name, Ref: ref}, nil
	case *ast.Unary:
		arg, err := b.bindNode(node.Expr, vars)
		if err != nil {
			return nil, err
		}
		sig := arithmeticFunctions["__neg"]
		if err := checkArgTypes(sig, []BoundNode{arg}); err != nil {
			return nil, err
		}
		return BoundCall{Function: sig, Args: []BoundNode{arg}}, nil
	case *ast.Binary:
		left, err := b.bindNode(node.Left, vars)
		if err != nil {
			return nil, err
		}
		right, err := b.bindNode(node.Right, vars)
		if err != nil {
			return nil, err
		}
		fname, ok := opDesugar[node.Op]
		if !ok {
			return nil, &BindError{Kind: UnknownFunction, Name: node.Op}
		}
		sig := arithmeticFunctions[fname]
		args := []BoundNode{left, right}
		if err := checkArgTypes(sig, args); err != nil {
			return nil, err
		}
		return BoundCall{Function: sig, Args: args}, nil
	case *ast.Call:
		sig, ok := b.Functions[node.Name]
		if !ok {
			return nil, &BindError{Kind: UnknownFunction, Name: node.Name}
		}
		if len(node.Args) != len(sig.ArgTypes) {
			return nil, &BindError{Kind: ArityMismatch, Name: node.Name}
		}
		args := make([]BoundNode, len(node.Args))
		for i, a := range node.Args {
			bound, err := b.bindNode(a, vars)
			if err != nil {
				return nil, err
			}
			args[i] = bound
		}
		if err := checkArgTypes(sig, args); err != nil {
			return nil, err
		}
		return BoundCall{Function: sig, Args: args}, nil
	default:
		return nil, &BindError{Kind: UnknownFunction, Name: fmt.Sprintf("%T", n)}
	}
}

// checkArgTypes validates literal-typed arguments against a signature.
// Variable-typed arguments (BoundVar) are not statically known here since
// object attribute types live in the metamodel, not this package; callers
// needing that strictness should pre-resolve BoundVar types before calling
// Bind, or validate post-hoc against the object schema.
func checkArgTypes(sig FunctionSignature, args []BoundNode) error {
	if len(args) != len(sig.ArgTypes) {
		return &BindError{Kind: ArityMismatch, Name: sig.Name}
	}
	for i, a := range args {
		lit, ok := a.(BoundLiteral)
		if !ok {
			continue
		}
		want := sig.ArgTypes[i]
		if lit.Value.Type() != want && !(numeric(lit.Value.Type()) && numeric(want)) {
			return &BindError{Kind: ArgumentTypeMismatch, Name: sig.Name}
		}
	}
	return nil
}

func numeric(t variant.ValueType) bool {
	return t == variant.TypeInt || t == variant.TypeDouble
}
