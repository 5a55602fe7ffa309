// Package metamodel implements the declarative schema layer: object
// types, traits (attribute schemas), edge rules and constraints that
// together define a modeling domain (eg: Stock-and-Flow).
package metamodel

import (
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"

	"github.com/purpleidea/poietic-core/internal/errwrap"
	"github.com/purpleidea/poietic-core/internal/predicate"
	"github.com/purpleidea/poietic-core/internal/variant"
)

// Errors returned by this package. Names are stable, external.
const (
	ErrUnknownObjectType = errwrap.ConstError("metamodel: unknown object type")
	ErrUnknownTrait      = errwrap.ConstError("metamodel: unknown trait")
	ErrUnknownConstraint = errwrap.ConstError("metamodel: unknown constraint")
	ErrMergeConflict     = errwrap.ConstError("metamodel: merge conflict")
	ErrInvalidName       = errwrap.ConstError("metamodel: name is not snake_case")
)

// StructuralType is the structural kind an ObjectType declares for its
// instances: whether they are free-standing, nodes, edges, or ordered sets.
type StructuralType int

// The structural kinds a design object can take.
const (
	StructUnstructured StructuralType = iota
	StructNode
	StructEdge
	StructOrderedSet
)

// String renders the canonical name of a StructuralType.
func (s StructuralType) String() string {
	switch s {
	case StructUnstructured:
		return "unstructured"
	case StructNode:
		return "node"
	case StructEdge:
		return "edge"
	case StructOrderedSet:
		return "orderedSet"
	default:
		return "unknown"
	}
}

// Attribute is a single named, typed member of a Trait.
type Attribute struct {
	Name     string
	Type     variant.ValueType
	ElemType variant.ValueType // meaningful only if Type == variant.TypeArray
	Default  *variant.Variant  // nil means "no default"
	Optional bool
	Abstract string // human-readable description
}

// HasDefault reports whether this attribute declares a default value.
func (a Attribute) HasDefault() bool { return a.Default != nil }

// Trait is a named set of attribute declarations. Traits share a flat
// attribute namespace per object type: an object type lists one or more
// traits, and same-named attributes across those traits collapse into a
// single entry, the first declaration in trait order winning (see
// Metamodel.Attributes).
type Trait struct {
	Name       string
	Attributes []Attribute
	Abstract   string
}

// Attribute looks up a declared attribute by name.
func (t Trait) Attribute(name string) (Attribute, bool) {
	for _, a := range t.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// ObjectType declares a named kind of design object: its structural class,
// the traits that define its attribute schema, and whether it is considered
// system-owned (reserved, not user-creatable outside internal bookkeeping).
type ObjectType struct {
	Name           string
	StructuralType StructuralType
	Traits         []string // trait names, resolved against the owning Metamodel
	SystemOwned    bool
	Abstract       string
}

// Constraint pairs a match predicate over snapshots with a requirement that
// every matched snapshot (collectively) must satisfy. predicate has no
// metamodel dependency (it resolves traits via a caller-supplied TraitsOf
// closure instead), so Constraint can reference its types directly.
type Constraint struct {
	Name        string
	Match       predicate.Predicate
	Requirement predicate.Requirement
}

// EdgeRule declares the legal endpoint types for an edge ObjectType, with an
// optional cardinality bound ("at most N outgoing edges of this type per
// origin", 0 meaning unbounded).
type EdgeRule struct {
	EdgeType         string
	OriginTypes      []string // legal type names for the edge's origin
	TargetTypes      []string // legal type names for the edge's target
	MaxPerOrigin     int      // 0 = unbounded
	MaxPerTarget     int      // 0 = unbounded
}

// Metamodel is an immutable, named collection of traits, object types, edge
// rules and constraints defining a modeling domain. Metamodels are
// explicit, constructor-passed values (never read from process globals, per
// spec §9) and are composable by Merge.
type Metamodel struct {
	Name    string
	Version string // semantic version, optional ("" means unspecified)

	traits      map[string]Trait
	objectTypes map[string]ObjectType
	edgeRules   map[string]EdgeRule
	constraints map[string]Constraint
	// order preserves declaration order for deterministic iteration,
	// matching the frame-order requirement on constraint checking
	// (spec §4.D accept algorithm step 4).
	traitOrder      []string
	objectTypeOrder []string
	constraintOrder []string
}

// New builds an empty, named Metamodel.
func New(name, version string) *Metamodel {
	return &Metamodel{
		Name:        name,
		Version:     version,
		traits:      make(map[string]Trait),
		objectTypes: make(map[string]ObjectType),
		edgeRules:   make(map[string]EdgeRule),
		constraints: make(map[string]Constraint),
	}
}

// AddTrait registers a trait, overriding any earlier trait of the same name
// (later definitions override same-named earlier ones, per spec §3).
func (m *Metamodel) AddTrait(t Trait) {
	if _, exists := m.traits[t.Name]; !exists {
		m.traitOrder = append(m.traitOrder, t.Name)
	}
	m.traits[t.Name] = t
}

// AddObjectType registers an object type.
func (m *Metamodel) AddObjectType(t ObjectType) {
	if _, exists := m.objectTypes[t.Name]; !exists {
		m.objectTypeOrder = append(m.objectTypeOrder, t.Name)
	}
	m.objectTypes[t.Name] = t
}

// AddEdgeRule registers an edge rule, keyed by the edge type it governs.
func (m *Metamodel) AddEdgeRule(r EdgeRule) {
	m.edgeRules[r.EdgeType] = r
}

// AddConstraint registers a constraint.
func (m *Metamodel) AddConstraint(c Constraint) {
	if _, exists := m.constraints[c.Name]; !exists {
		m.constraintOrder = append(m.constraintOrder, c.Name)
	}
	m.constraints[c.Name] = c
}

// Trait looks up a trait by name.
func (m *Metamodel) Trait(name string) (Trait, error) {
	t, ok := m.traits[name]
	if !ok {
		return Trait{}, errors.Wrapf(ErrUnknownTrait, "%q", name)
	}
	return t, nil
}

// ObjectType looks up an object type by name.
func (m *Metamodel) ObjectType(name string) (ObjectType, error) {
	t, ok := m.objectTypes[name]
	if !ok {
		return ObjectType{}, errors.Wrapf(ErrUnknownObjectType, "%q", name)
	}
	return t, nil
}

// Constraint looks up a constraint by name.
func (m *Metamodel) Constraint(name string) (Constraint, error) {
	c, ok := m.constraints[name]
	if !ok {
		return Constraint{}, errors.Wrapf(ErrUnknownConstraint, "%q", name)
	}
	return c, nil
}

// EdgeRule looks up the edge rule governing a given edge type, if any.
func (m *Metamodel) EdgeRule(edgeType string) (EdgeRule, bool) {
	r, ok := m.edgeRules[edgeType]
	return r, ok
}

// Constraints returns every registered constraint in declaration order.
func (m *Metamodel) Constraints() []Constraint {
	out := make([]Constraint, 0, len(m.constraintOrder))
	for _, name := range m.constraintOrder {
		out = append(out, m.constraints[name])
	}
	return out
}

// ObjectTypes returns every registered object type in declaration order.
func (m *Metamodel) ObjectTypes() []ObjectType {
	out := make([]ObjectType, 0, len(m.objectTypeOrder))
	for _, name := range m.objectTypeOrder {
		out = append(out, m.objectTypes[name])
	}
	return out
}

// Attributes returns the flattened, deduplicated attribute schema for an
// object type: every attribute declared by any of its traits.
func (m *Metamodel) Attributes(objectTypeName string) ([]Attribute, error) {
	ot, err := m.ObjectType(objectTypeName)
	if err != nil {
		return nil, err
	}
	var attrs []Attribute
	seen := make(map[string]bool)
	for _, traitName := range ot.Traits {
		tr, err := m.Trait(traitName)
		if err != nil {
			return nil, err
		}
		for _, a := range tr.Attributes {
			if seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			attrs = append(attrs, a)
		}
	}
	return attrs, nil
}

// Attribute looks up a single attribute declaration by name across all
// traits of an object type.
func (m *Metamodel) Attribute(objectTypeName, attrName string) (Attribute, error) {
	attrs, err := m.Attributes(objectTypeName)
	if err != nil {
		return Attribute{}, err
	}
	for _, a := range attrs {
		if a.Name == attrName {
			return a, nil
		}
	}
	return Attribute{}, errors.Wrapf(errwrap.ConstError("metamodel: unknown attribute"), "%q on %q", attrName, objectTypeName)
}

// Merge composes this metamodel with another, returning a new Metamodel
// whose traits/object types/edge rules/constraints are the union, with
// `other`'s definitions overriding same-named entries from `m`. Use
// ValidateMergeability first if you want to reject conflicting structural
// types before merging silently overrides them.
func (m *Metamodel) Merge(other *Metamodel) *Metamodel {
	merged := New(other.Name, other.Version)
	for _, name := range m.traitOrder {
		merged.AddTrait(m.traits[name])
	}
	for _, name := range m.objectTypeOrder {
		merged.AddObjectType(m.objectTypes[name])
	}
	for _, r := range m.edgeRules {
		merged.AddEdgeRule(r)
	}
	for _, name := range m.constraintOrder {
		merged.AddConstraint(m.constraints[name])
	}
	for _, name := range other.traitOrder {
		merged.AddTrait(other.traits[name])
	}
	for _, name := range other.objectTypeOrder {
		merged.AddObjectType(other.objectTypes[name])
	}
	for _, r := range other.edgeRules {
		merged.AddEdgeRule(r)
	}
	for _, name := range other.constraintOrder {
		merged.AddConstraint(other.constraints[name])
	}
	return merged
}

// MergeConflict describes one same-named definition whose shape differs
// between two metamodels being merged.
type MergeConflict struct {
	Kind string // "objectType", "trait", "edgeRule", "constraint"
	Name string
	Detail string
}

// String renders a human-readable merge conflict description.
func (c MergeConflict) String() string {
	return fmt.Sprintf("%s %q: %s", c.Kind, c.Name, c.Detail)
}

// ValidateMergeability reports every conflict that would be resolved by
// silent override if m.Merge(other) were called: same-named object types
// with a different structural type, or same-named traits with a different
// attribute set. It does not itself prevent the merge; callers decide.
func (m *Metamodel) ValidateMergeability(other *Metamodel) []MergeConflict {
	var conflicts []MergeConflict
	for name, ot := range m.objectTypes {
		oot, ok := other.objectTypes[name]
		if !ok {
			continue
		}
		if ot.StructuralType != oot.StructuralType {
			conflicts = append(conflicts, MergeConflict{
				Kind:   "objectType",
				Name:   name,
				Detail: fmt.Sprintf("structural type %s vs %s", ot.StructuralType, oot.StructuralType),
			})
		}
	}
	for name, t := range m.traits {
		ot, ok := other.traits[name]
		if !ok {
			continue
		}
		if len(t.Attributes) != len(ot.Attributes) {
			conflicts = append(conflicts, MergeConflict{
				Kind:   "trait",
				Name:   name,
				Detail: "attribute count differs",
			})
			continue
		}
		for i, a := range t.Attributes {
			if a.Name != ot.Attributes[i].Name || a.Type != ot.Attributes[i].Type {
				conflicts = append(conflicts, MergeConflict{
					Kind:   "trait",
					Name:   name,
					Detail: fmt.Sprintf("attribute %q differs", a.Name),
				})
			}
		}
	}
	return conflicts
}

// Validate checks that every object type, trait and constraint name follows
// the snake_case wire convention used by the raw interchange layer (spec
// §4.I's RawSnapshot.TypeName). This catches metamodel-authoring mistakes
// before they reach export.
func (m *Metamodel) Validate() error {
	var err error
	for _, name := range m.objectTypeOrder {
		if !isSnakeCase(name) {
			err = errwrap.Append(err, "object-type-name", errors.Wrapf(ErrInvalidName, "object type %q", name))
		}
	}
	for _, name := range m.traitOrder {
		if !isSnakeCase(name) {
			err = errwrap.Append(err, "trait-name", errors.Wrapf(ErrInvalidName, "trait %q", name))
		}
	}
	for _, name := range m.constraintOrder {
		if !isSnakeCase(name) {
			err = errwrap.Append(err, "constraint-name", errors.Wrapf(ErrInvalidName, "constraint %q", name))
		}
	}
	return err
}

func isSnakeCase(name string) bool {
	return strcase.ToSnake(name) == name
}

// Describe renders a short human-readable summary of the metamodel's
// traits and object types, useful for CLI/tooling diagnostics.
func (m *Metamodel) Describe() string {
	s := fmt.Sprintf("metamodel %q", m.Name)
	if m.Version != "" {
		s += fmt.Sprintf(" (%s)", m.Version)
	}
	s += fmt.Sprintf(": %d traits, %d object types, %d constraints",
		len(m.traitOrder), len(m.objectTypeOrder), len(m.constraintOrder))
	return s
}
