// Package object implements the object model: identifiers, the
// structural-type sum, immutable design-object snapshots, and the mutable
// transient objects used while editing a frame.
package object

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/purpleidea/poietic-core/internal/errwrap"
	"github.com/purpleidea/poietic-core/internal/variant"
)

// ObjectID is the stable identity of a design object across its versions.
type ObjectID uint64

// SnapshotID is the identity of one specific version of an object.
type SnapshotID uint64

// State is the lifecycle stage of a snapshot.
type State int

// The lifecycle stages a Snapshot passes through.
const (
	StateTransient State = iota
	StateValidated
	StateFrozen
)

// String renders the canonical name of a State.
func (s State) String() string {
	switch s {
	case StateTransient:
		return "transient"
	case StateValidated:
		return "validated"
	case StateFrozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// StructureKind tags the Structure sum type.
type StructureKind int

// The structural shapes a Structure value can take.
const (
	KindUnstructured StructureKind = iota
	KindNode
	KindEdge
	KindOrderedSet
)

// String renders the canonical name of a StructureKind.
func (k StructureKind) String() string {
	switch k {
	case KindUnstructured:
		return "unstructured"
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	case KindOrderedSet:
		return "orderedSet"
	default:
		return "unknown"
	}
}

// Structure is the structural payload of a design object: unstructured and
// node carry nothing extra; edge carries its origin/target; orderedSet
// carries its owner and an ordered, advisory list of item references.
type Structure struct {
	Kind StructureKind

	// Origin, Target are meaningful only when Kind == KindEdge.
	Origin ObjectID
	Target ObjectID

	// Owner, Items are meaningful only when Kind == KindOrderedSet. Item
	// references are advisory: they are pruned, not cascaded, when a
	// referenced object is removed (spec §3).
	Owner ObjectID
	Items []ObjectID
}

// Unstructured returns a Structure of kind unstructured.
func Unstructured() Structure { return Structure{Kind: KindUnstructured} }

// Node returns a Structure of kind node.
func Node() Structure { return Structure{Kind: KindNode} }

// Edge returns a Structure of kind edge with the given endpoints.
func Edge(origin, target ObjectID) Structure {
	return Structure{Kind: KindEdge, Origin: origin, Target: target}
}

// OrderedSet returns a Structure of kind orderedSet with the given owner and
// item order.
func OrderedSet(owner ObjectID, items []ObjectID) Structure {
	cp := make([]ObjectID, len(items))
	copy(cp, items)
	return Structure{Kind: KindOrderedSet, Owner: owner, Items: cp}
}

// Dependencies returns the ObjectIDs this structure structurally depends on:
// an edge depends on its origin and target, an orderedSet on its owner. Item
// references are intentionally excluded (they're advisory, spec §3).
func (s Structure) Dependencies() []ObjectID {
	switch s.Kind {
	case KindEdge:
		return []ObjectID{s.Origin, s.Target}
	case KindOrderedSet:
		return []ObjectID{s.Owner}
	default:
		return nil
	}
}

// Snapshot is an immutable version of a single design object.
type Snapshot struct {
	ObjectID   ObjectID
	SnapshotID SnapshotID
	TypeName   string // reference into the owning metamodel
	Structure  Structure
	Parent     *ObjectID // containment reference, optional
	Attributes map[string]variant.Variant
	State      State
}

// Attribute returns the value of a named attribute, and whether it was
// present.
func (s Snapshot) Attribute(name string) (variant.Variant, bool) {
	v, ok := s.Attributes[name]
	return v, ok
}

// WithAttribute returns a copy of this snapshot with the given attribute
// added or replaced. The receiver is left unmodified, preserving snapshot
// immutability.
func (s Snapshot) WithAttribute(name string, v variant.Variant) Snapshot {
	out := s.copyShallow()
	out.Attributes[name] = v
	return out
}

// Derive produces a fresh snapshot of the same object: same ObjectID, new
// SnapshotID, attributes and structure copied, state reset to transient.
// This is the versioned-store analogue of "edit this object" — it never
// mutates the receiver.
func (s Snapshot) Derive(newID SnapshotID) Snapshot {
	out := s.copyShallow()
	out.SnapshotID = newID
	out.State = StateTransient
	return out
}

func (s Snapshot) copyShallow() Snapshot {
	attrs := make(map[string]variant.Variant, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs[k] = v
	}
	var parent *ObjectID
	if s.Parent != nil {
		p := *s.Parent
		parent = &p
	}
	items := make([]ObjectID, len(s.Structure.Items))
	copy(items, s.Structure.Items)
	structure := s.Structure
	structure.Items = items
	return Snapshot{
		ObjectID:   s.ObjectID,
		SnapshotID: s.SnapshotID,
		TypeName:   s.TypeName,
		Structure:  structure,
		Parent:     parent,
		Attributes: attrs,
		State:      s.State,
	}
}

// Hash returns a stable structural hash of the snapshot's full state
// (identity, type, structure, parent, attributes). Two snapshots with equal
// Hash are expected to be observably identical; used to mechanically check
// the snapshot-immutability invariant and constraint-determinism law (spec
// §8) in tests.
func (s Snapshot) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s|%d|", s.ObjectID, s.SnapshotID, s.TypeName, s.Structure.Kind)
	switch s.Structure.Kind {
	case KindEdge:
		fmt.Fprintf(h, "%d,%d|", s.Structure.Origin, s.Structure.Target)
	case KindOrderedSet:
		fmt.Fprintf(h, "%d:", s.Structure.Owner)
		for _, it := range s.Structure.Items {
			fmt.Fprintf(h, "%d,", it)
		}
		h.Write([]byte{'|'})
	}
	if s.Parent != nil {
		fmt.Fprintf(h, "parent=%d|", *s.Parent)
	} else {
		h.Write([]byte("parent=nil|"))
	}
	keys := make([]string, 0, len(s.Attributes))
	for k := range s.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, s.Attributes[k].String())
	}
	return h.Sum64()
}

// TransientObject is a mutable working copy of a snapshot being edited
// within a transient frame. It tracks whether it is newly created in this
// editing session (as opposed to derived from an existing snapshot).
type TransientObject struct {
	Snapshot Snapshot
	IsNew    bool
}

// SetAttribute sets a trait-declared attribute key. Callers are expected to
// have already validated the key/type against the metamodel (package store
// does this); this method itself performs no schema validation, since
// object has no metamodel dependency.
func (t *TransientObject) SetAttribute(name string, v variant.Variant) {
	if t.Snapshot.Attributes == nil {
		t.Snapshot.Attributes = make(map[string]variant.Variant)
	}
	t.Snapshot.Attributes[name] = v
}

// Errors returned by this package.
const (
	ErrUnknownAttribute     = errwrap.ConstError("object: unknown attribute")
	ErrStructuralMismatch   = errwrap.ConstError("object: structural mismatch")
)
