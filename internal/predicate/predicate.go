// Package predicate implements composable boolean queries over design
// object snapshots (Predicate) and the constraint requirements that check a
// whole matched set at once (Requirement).
//
// Grounded on pgraph/autoedge.go and pgraph/autogroup.go's pattern of small
// matcher closures run over a vertex slice, adapted from mgmt's
// resources.ResUID-matching to the snapshot/trait domain of spec §4.F.
package predicate

import (
	"fmt"
	"sort"

	"github.com/purpleidea/poietic-core/internal/errwrap"
	"github.com/purpleidea/poietic-core/internal/graph"
	"github.com/purpleidea/poietic-core/internal/object"
)

// Errors returned by this package.
const (
	ErrUnknownDirection = errwrap.ConstError("predicate: unknown direction")
)

// Frame is the minimal read surface a Predicate/Requirement needs: snapshot
// lookup plus a graph view for neighbourhood-aware predicates.
type Frame interface {
	Snapshot(id object.ObjectID) (object.Snapshot, bool)
	Graph() *graph.View
}

// Predicate answers a boolean query over a single snapshot in the context of
// a frame. Implementations are small value types composed with And/Or/Not;
// this is the tagged-sum approach spec §9 calls for in place of a class
// hierarchy of predicate subtypes.
type Predicate interface {
	// Name returns a short, stable identifier for the predicate variant,
	// used in constraint-violation diagnostics and metamodel.Constraint.
	Name() string
	// Match reports whether snap satisfies this predicate in the context
	// of frame (needed by EdgeObjectPredicate to inspect endpoints).
	Match(snap object.Snapshot, frame Frame) bool
}

// Any matches every snapshot.
type Any struct{}

// Name implements Predicate.
func (Any) Name() string { return "any" }

// Match implements Predicate.
func (Any) Match(object.Snapshot, Frame) bool { return true }

// HasTrait matches snapshots whose object type declares the given trait.
// TraitsOf is supplied by the caller (internal/store, which has the
// metamodel) so this package stays free of a metamodel dependency.
type HasTrait struct {
	Trait    string
	TraitsOf func(typeName string) []string
}

// Name implements Predicate.
func (p HasTrait) Name() string { return fmt.Sprintf("has_trait(%s)", p.Trait) }

// Match implements Predicate.
func (p HasTrait) Match(snap object.Snapshot, _ Frame) bool {
	for _, t := range p.TraitsOf(snap.TypeName) {
		if t == p.Trait {
			return true
		}
	}
	return false
}

// IsType matches snapshots whose type name is one of Types.
type IsType struct {
	Types []string
}

// Name implements Predicate.
func (p IsType) Name() string { return "is_type" }

// Match implements Predicate.
func (p IsType) Match(snap object.Snapshot, _ Frame) bool {
	for _, t := range p.Types {
		if t == snap.TypeName {
			return true
		}
	}
	return false
}

// EdgeObject matches edge snapshots whose origin, target and/or own
// snapshot satisfy the given sub-predicates. A nil sub-predicate is treated
// as always matching that component.
type EdgeObject struct {
	Origin Predicate
	Target Predicate
	Edge   Predicate
}

// Name implements Predicate.
func (EdgeObject) Name() string { return "edge_object" }

// Match implements Predicate.
func (p EdgeObject) Match(snap object.Snapshot, frame Frame) bool {
	if snap.Structure.Kind != object.KindEdge {
		return false
	}
	if p.Edge != nil && !p.Edge.Match(snap, frame) {
		return false
	}
	if p.Origin != nil {
		origin, ok := frame.Snapshot(snap.Structure.Origin)
		if !ok || !p.Origin.Match(origin, frame) {
			return false
		}
	}
	if p.Target != nil {
		target, ok := frame.Snapshot(snap.Structure.Target)
		if !ok || !p.Target.Match(target, frame) {
			return false
		}
	}
	return true
}

// Function wraps an arbitrary closure as a Predicate, the escape hatch for
// user-defined matchers (spec §9's "FunctionPredicate(closure)").
type Function struct {
	FuncName string
	Fn       func(snap object.Snapshot, frame Frame) bool
}

// Name implements Predicate.
func (p Function) Name() string {
	if p.FuncName != "" {
		return p.FuncName
	}
	return "function"
}

// Match implements Predicate.
func (p Function) Match(snap object.Snapshot, frame Frame) bool { return p.Fn(snap, frame) }

// And matches when every sub-predicate matches.
type And struct{ Of []Predicate }

// Name implements Predicate.
func (And) Name() string { return "and" }

// Match implements Predicate.
func (p And) Match(snap object.Snapshot, frame Frame) bool {
	for _, sub := range p.Of {
		if !sub.Match(snap, frame) {
			return false
		}
	}
	return true
}

// Or matches when any sub-predicate matches.
type Or struct{ Of []Predicate }

// Name implements Predicate.
func (Or) Name() string { return "or" }

// Match implements Predicate.
func (p Or) Match(snap object.Snapshot, frame Frame) bool {
	for _, sub := range p.Of {
		if sub.Match(snap, frame) {
			return true
		}
	}
	return false
}

// Not inverts a sub-predicate.
type Not struct{ Of Predicate }

// Name implements Predicate.
func (Not) Name() string { return "not" }

// Match implements Predicate.
func (p Not) Match(snap object.Snapshot, frame Frame) bool { return !p.Of.Match(snap, frame) }

// Match runs a predicate over every object ID supplied, in the given order
// (callers are responsible for supplying frame order, spec §4.D step 4), and
// returns the matched snapshots in the same relative order.
func Match(pred Predicate, ids []object.ObjectID, frame Frame) []object.Snapshot {
	var matched []object.Snapshot
	for _, id := range ids {
		snap, ok := frame.Snapshot(id)
		if !ok {
			continue
		}
		if pred.Match(snap, frame) {
			matched = append(matched, snap)
		}
	}
	return matched
}

// Requirement checks a whole matched set of snapshots at once and returns
// the ObjectIDs that violate it (spec §4.F). CheckFull always accumulates
// every violation, ascending order; CheckEarlyExit stops at the first one
// found. The two modes agree: CheckEarlyExit returns nil exactly when
// CheckFull finds no violation, and otherwise returns a single ID that is
// also in CheckFull's result — only the amount of work done differs.
type Requirement interface {
	// Name returns a short, stable identifier for diagnostics.
	Name() string
	// Describe renders a human-readable explanation of what this
	// requirement checks, used in constraint-failure messages.
	Describe() string
	// CheckFull returns every violating ObjectID, ascending order.
	CheckFull(matched []object.Snapshot, frame Frame) []object.ObjectID
	// CheckEarlyExit returns at most one violating ObjectID, stopping at
	// the first violation found; returns nil if none.
	CheckEarlyExit(matched []object.Snapshot, frame Frame) []object.ObjectID
}

// AllSatisfy requires every matched snapshot to also satisfy Of.
type AllSatisfy struct {
	Of Predicate
}

// Name implements Requirement.
func (AllSatisfy) Name() string { return "all_satisfy" }

// Describe implements Requirement.
func (r AllSatisfy) Describe() string { return fmt.Sprintf("all matched objects must satisfy %s", r.Of.Name()) }

// CheckFull implements Requirement.
func (r AllSatisfy) CheckFull(matched []object.Snapshot, frame Frame) []object.ObjectID {
	var violations []object.ObjectID
	for _, s := range matched {
		if !r.Of.Match(s, frame) {
			violations = append(violations, s.ObjectID)
		}
	}
	return sortedIDs(violations)
}

// CheckEarlyExit implements Requirement.
func (r AllSatisfy) CheckEarlyExit(matched []object.Snapshot, frame Frame) []object.ObjectID {
	for _, s := range matched {
		if !r.Of.Match(s, frame) {
			return []object.ObjectID{s.ObjectID}
		}
	}
	return nil
}

// RejectAll fails (every matched object is a violation) unconditionally.
// Used to forbid an entire matched set, eg: "no object of this type may
// exist".
type RejectAll struct{}

// Name implements Requirement.
func (RejectAll) Name() string { return "reject_all" }

// Describe implements Requirement.
func (RejectAll) Describe() string { return "no matched object may exist" }

// CheckFull implements Requirement.
func (RejectAll) CheckFull(matched []object.Snapshot, _ Frame) []object.ObjectID {
	ids := make([]object.ObjectID, len(matched))
	for i, s := range matched {
		ids[i] = s.ObjectID
	}
	return sortedIDs(ids)
}

// CheckEarlyExit implements Requirement.
func (RejectAll) CheckEarlyExit(matched []object.Snapshot, _ Frame) []object.ObjectID {
	if len(matched) == 0 {
		return nil
	}
	return []object.ObjectID{matched[0].ObjectID}
}

// AcceptAll never fails, regardless of what matched. Useful as a constraint
// placeholder or for documentation-only constraints.
type AcceptAll struct{}

// Name implements Requirement.
func (AcceptAll) Name() string { return "accept_all" }

// Describe implements Requirement.
func (AcceptAll) Describe() string { return "always satisfied" }

// CheckFull implements Requirement.
func (AcceptAll) CheckFull([]object.Snapshot, Frame) []object.ObjectID { return nil }

// CheckEarlyExit implements Requirement.
func (AcceptAll) CheckEarlyExit([]object.Snapshot, Frame) []object.ObjectID { return nil }

// UniqueProperty requires every matched snapshot's named attribute value to
// be unique across the set; every object sharing a duplicated value is a
// violation.
type UniqueProperty struct {
	Attribute string
}

// Name implements Requirement.
func (UniqueProperty) Name() string { return "unique_property" }

// Describe implements Requirement.
func (r UniqueProperty) Describe() string {
	return fmt.Sprintf("attribute %q must be unique among matched objects", r.Attribute)
}

// CheckFull implements Requirement.
func (r UniqueProperty) CheckFull(matched []object.Snapshot, _ Frame) []object.ObjectID {
	byValue := make(map[string][]object.ObjectID)
	for _, s := range matched {
		v, ok := s.Attribute(r.Attribute)
		if !ok {
			continue
		}
		key := v.String()
		byValue[key] = append(byValue[key], s.ObjectID)
	}
	var violations []object.ObjectID
	for _, ids := range byValue {
		if len(ids) > 1 {
			violations = append(violations, ids...)
		}
	}
	return sortedIDs(violations)
}

// CheckEarlyExit implements Requirement.
func (r UniqueProperty) CheckEarlyExit(matched []object.Snapshot, frame Frame) []object.ObjectID {
	full := r.CheckFull(matched, frame)
	if len(full) == 0 {
		return nil
	}
	return full[:1]
}

// UniqueNeighbour requires that, for each matched node, at most one
// neighbourhood edge (in Direction) matches EdgePredicate; if Required is
// set, exactly one (not zero) must match.
type UniqueNeighbour struct {
	EdgePredicate func(edge object.Snapshot) bool
	Direction     graph.Direction
	Required      bool
}

// Name implements Requirement.
func (UniqueNeighbour) Name() string { return "unique_neighbour" }

// Describe implements Requirement.
func (r UniqueNeighbour) Describe() string {
	if r.Required {
		return "each matched node must have exactly one matching neighbour edge"
	}
	return "each matched node must have at most one matching neighbour edge"
}

// CheckFull implements Requirement.
func (r UniqueNeighbour) CheckFull(matched []object.Snapshot, frame Frame) []object.ObjectID {
	var violations []object.ObjectID
	g := frame.Graph()
	for _, s := range matched {
		count := len(g.Hood(s.ObjectID, r.Direction, graph.EdgePredicate(r.EdgePredicate)))
		if count > 1 || (r.Required && count == 0) {
			violations = append(violations, s.ObjectID)
		}
	}
	return sortedIDs(violations)
}

// CheckEarlyExit implements Requirement.
func (r UniqueNeighbour) CheckEarlyExit(matched []object.Snapshot, frame Frame) []object.ObjectID {
	g := frame.Graph()
	for _, s := range matched {
		count := len(g.Hood(s.ObjectID, r.Direction, graph.EdgePredicate(r.EdgePredicate)))
		if count > 1 || (r.Required && count == 0) {
			return []object.ObjectID{s.ObjectID}
		}
	}
	return nil
}

// EdgeEndpointTypes requires each matched edge's origin/target (and,
// optionally, the edge itself) to satisfy IsType-style predicates.
type EdgeEndpointTypes struct {
	Origin Predicate // nil means "no constraint"
	Target Predicate
	Edge   Predicate
}

// Name implements Requirement.
func (EdgeEndpointTypes) Name() string { return "edge_endpoint_types" }

// Describe implements Requirement.
func (EdgeEndpointTypes) Describe() string { return "edge endpoints must match the declared types" }

// CheckFull implements Requirement.
func (r EdgeEndpointTypes) CheckFull(matched []object.Snapshot, frame Frame) []object.ObjectID {
	var violations []object.ObjectID
	for _, s := range matched {
		if !r.matches(s, frame) {
			violations = append(violations, s.ObjectID)
		}
	}
	return sortedIDs(violations)
}

// CheckEarlyExit implements Requirement.
func (r EdgeEndpointTypes) CheckEarlyExit(matched []object.Snapshot, frame Frame) []object.ObjectID {
	for _, s := range matched {
		if !r.matches(s, frame) {
			return []object.ObjectID{s.ObjectID}
		}
	}
	return nil
}

func (r EdgeEndpointTypes) matches(s object.Snapshot, frame Frame) bool {
	if s.Structure.Kind != object.KindEdge {
		return false
	}
	if r.Edge != nil && !r.Edge.Match(s, frame) {
		return false
	}
	if r.Origin != nil {
		origin, ok := frame.Snapshot(s.Structure.Origin)
		if !ok || !r.Origin.Match(origin, frame) {
			return false
		}
	}
	if r.Target != nil {
		target, ok := frame.Snapshot(s.Structure.Target)
		if !ok || !r.Target.Match(target, frame) {
			return false
		}
	}
	return true
}

func sortedIDs(ids []object.ObjectID) []object.ObjectID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
