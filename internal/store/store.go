// Package store implements the versioned object store: Design, immutable
// DesignFrames, mutable TransientFrames, the accept algorithm, and undo/redo
// history. This is the central subsystem that ties the metamodel (B),
// object model (C), graph view (E), and predicates/constraints (F)
// together.
//
// Grounded on pgraph/pgraph.go's Graph as the "owns everything, others hold
// references" storage pattern, adapted from a mutable vertex graph to a
// frame-versioned snapshot pool. Accept's four check phases
// batch their violations with errwrap.Append, tagging each one with the
// constraint/rule/check that produced it (spec §7: "batch and surface").
package store

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/sanity-io/litter"

	"github.com/purpleidea/poietic-core/internal/errwrap"
	"github.com/purpleidea/poietic-core/internal/graph"
	"github.com/purpleidea/poietic-core/internal/metamodel"
	"github.com/purpleidea/poietic-core/internal/object"
	"github.com/purpleidea/poietic-core/internal/predicate"
	"github.com/purpleidea/poietic-core/internal/variant"
)

// FrameID identifies a single DesignFrame within a Design.
type FrameID uint64

// Errors returned by this package. Names mirror spec §6's stable external
// error codes.
const (
	ErrUnknownObject      = errwrap.ConstError("store: unknown object")
	ErrUnknownAttribute   = errwrap.ConstError("store: unknown attribute")
	ErrStructuralMismatch = errwrap.ConstError("store: structural mismatch")
	ErrConstraintViolation = errwrap.ConstError("store: constraint violation")
	ErrEdgeRuleViolation  = errwrap.ConstError("store: edge rule violation")
	ErrStaleBase          = errwrap.ConstError("store: stale base frame")
	ErrFrameClosed        = errwrap.ConstError("store: transient frame is closed")
	ErrUnknownFrame       = errwrap.ConstError("store: unknown frame")
	ErrNoUndo             = errwrap.ConstError("store: nothing to undo")
	ErrNoRedo             = errwrap.ConstError("store: nothing to redo")
	ErrFrameStructural    = errwrap.ConstError("store: frame structural error")
)

// DesignFrame is an immutable, complete snapshot of the whole design at one
// revision: at most one Snapshot per ObjectID. Satisfies graph.Frame and
// predicate.Frame.
type DesignFrame struct {
	id        FrameID
	design    *Design
	snapshots map[object.ObjectID]object.SnapshotID // index: ObjectID -> the snapshot installed in this frame
}

// ID returns this frame's FrameID.
func (f *DesignFrame) ID() FrameID { return f.id }

// Snapshot looks up the snapshot installed for ObjectID id in this frame.
func (f *DesignFrame) Snapshot(id object.ObjectID) (object.Snapshot, bool) {
	sid, ok := f.snapshots[id]
	if !ok {
		return object.Snapshot{}, false
	}
	return f.design.pool[sid], true
}

// ObjectIDs returns every ObjectID present in this frame, ascending order.
func (f *DesignFrame) ObjectIDs() []object.ObjectID {
	ids := make([]object.ObjectID, 0, len(f.snapshots))
	for id := range f.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Graph builds a fresh graph view over this frame, satisfying
// predicate.Frame.
func (f *DesignFrame) Graph() *graph.View { return graph.New(f) }

// Diff reports the ObjectIDs that were added, removed, or whose attached
// snapshot changed between this frame and other. A supplemented convenience
// over the raw frame representation, useful for UIs diffing two revisions.
func (f *DesignFrame) Diff(other *DesignFrame) FrameDiff {
	d := FrameDiff{}
	for id, sid := range f.snapshots {
		osid, ok := other.snapshots[id]
		if !ok {
			d.Removed = append(d.Removed, id)
			continue
		}
		if osid != sid {
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range other.snapshots {
		if _, ok := f.snapshots[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}
	sortIDs(d.Added)
	sortIDs(d.Removed)
	sortIDs(d.Changed)
	return d
}

func sortIDs(ids []object.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// FrameDiff is the result of comparing two frames, ascending ObjectID order
// within each list.
type FrameDiff struct {
	Added, Removed, Changed []object.ObjectID
}

// transientState is the lifecycle state of a TransientFrame.
type transientState int

const (
	transientOpen transientState = iota
	transientAccepted
	transientDiscarded
)

// TransientFrame is a mutable working copy of a frame being edited. Derived
// from a base DesignFrame (copy-on-write: unmodified objects are shared by
// SnapshotID reference until touched). Satisfies graph.Frame and
// predicate.Frame so the constraint checker's match predicates can run
// directly against it during accept.
type TransientFrame struct {
	design *Design
	base   FrameID

	state transientState

	// objects holds the working set: every ObjectID present in this
	// transient frame, whether untouched-from-base, newly created, or
	// edited. Removed objects are deleted from this map outright.
	objects map[object.ObjectID]*object.TransientObject

	nextObjectID object.ObjectID
}

// State reports whether this frame is still open for edits.
func (t *TransientFrame) State() string {
	switch t.state {
	case transientAccepted:
		return "accepted"
	case transientDiscarded:
		return "discarded"
	default:
		return "open"
	}
}

// Snapshot looks up the working snapshot for an ObjectID, satisfying
// graph.Frame/predicate.Frame over the in-progress edit.
func (t *TransientFrame) Snapshot(id object.ObjectID) (object.Snapshot, bool) {
	obj, ok := t.objects[id]
	if !ok {
		return object.Snapshot{}, false
	}
	return obj.Snapshot, true
}

// ObjectIDs returns every ObjectID currently present in this transient
// frame, ascending order.
func (t *TransientFrame) ObjectIDs() []object.ObjectID {
	ids := make([]object.ObjectID, 0, len(t.objects))
	for id := range t.objects {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Graph builds a fresh graph view over this transient frame's current
// working set, satisfying predicate.Frame.
func (t *TransientFrame) Graph() *graph.View { return graph.New(t) }

func (t *TransientFrame) requireOpen() error {
	if t.state != transientOpen {
		return ErrFrameClosed
	}
	return nil
}

// Create adds a new object of the given type and structure, with optional
// initial attributes, to this transient frame.
func (t *TransientFrame) Create(typeName string, structure object.Structure, attrs map[string]variant.Variant) (object.ObjectID, error) {
	if err := t.requireOpen(); err != nil {
		return 0, err
	}
	ot, err := t.design.metamodel.ObjectType(typeName)
	if err != nil {
		return 0, err
	}
	if structuralKindOf(ot.StructuralType) != structure.Kind {
		return 0, errors.Wrapf(ErrStructuralMismatch, "type %q declares %s, got %s", typeName, ot.StructuralType, structure.Kind)
	}

	id := t.allocObjectID()
	sid := t.design.allocSnapshotID()
	copied := make(map[string]variant.Variant, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	snap := object.Snapshot{
		ObjectID:   id,
		SnapshotID: sid,
		TypeName:   typeName,
		Structure:  structure,
		Attributes: copied,
		State:      object.StateTransient,
	}
	t.objects[id] = &object.TransientObject{Snapshot: snap, IsNew: true}
	return id, nil
}

func (t *TransientFrame) allocObjectID() object.ObjectID {
	for {
		t.nextObjectID++
		id := t.nextObjectID
		if _, used := t.objects[id]; !used {
			return id
		}
	}
}

func structuralKindOf(s metamodel.StructuralType) object.StructureKind {
	switch s {
	case metamodel.StructNode:
		return object.KindNode
	case metamodel.StructEdge:
		return object.KindEdge
	case metamodel.StructOrderedSet:
		return object.KindOrderedSet
	default:
		return object.KindUnstructured
	}
}

// Remove deletes a single object with no cascading: if other surviving
// objects structurally depend on it, accept's structural-integrity check
// will fail. Use RemoveCascading to remove a dependency closure atomically.
func (t *TransientFrame) Remove(id object.ObjectID) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if _, ok := t.objects[id]; !ok {
		return errors.Wrapf(ErrUnknownObject, "%d", id)
	}
	delete(t.objects, id)
	t.pruneOrderedSetReferences(id)
	return nil
}

// RemoveCascading computes the full structural-dependency closure of id
// (every object whose chain of origin/target/owner or parent references
// reaches id, transitively) and removes it as one atomic set, per spec §4.D: "compute
// closure first, then delete as a set, so dependents don't observe
// half-removed state."
func (t *TransientFrame) RemoveCascading(id object.ObjectID) ([]object.ObjectID, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	if _, ok := t.objects[id]; !ok {
		return nil, errors.Wrapf(ErrUnknownObject, "%d", id)
	}

	closure := t.dependencyClosure(id)
	for depID := range closure {
		delete(t.objects, depID)
	}
	for depID := range closure {
		t.pruneOrderedSetReferences(depID)
	}

	out := make([]object.ObjectID, 0, len(closure))
	for depID := range closure {
		out = append(out, depID)
	}
	sortIDs(out)
	return out, nil
}

// dependencyClosure returns the set containing root plus every object that
// transitively structurally depends on it (an edge depends on its origin
// and target; an orderedSet depends on its owner; an object with a parent
// depends on that parent).
func (t *TransientFrame) dependencyClosure(root object.ObjectID) map[object.ObjectID]bool {
	closure := map[object.ObjectID]bool{root: true}
	changed := true
	for changed {
		changed = false
		for id, obj := range t.objects {
			if closure[id] {
				continue
			}
			for _, dep := range obj.Snapshot.Structure.Dependencies() {
				if closure[dep] {
					closure[id] = true
					changed = true
					break
				}
			}
			if !closure[id] && obj.Snapshot.Parent != nil && closure[*obj.Snapshot.Parent] {
				closure[id] = true
				changed = true
			}
		}
	}
	return closure
}

// pruneOrderedSetReferences removes advisory item references to a removed
// ObjectID from every surviving orderedSet: item references are advisory
// (pruned, not cascaded), per spec §3.
func (t *TransientFrame) pruneOrderedSetReferences(removed object.ObjectID) {
	for _, obj := range t.objects {
		if obj.Snapshot.Structure.Kind != object.KindOrderedSet {
			continue
		}
		items := obj.Snapshot.Structure.Items
		pruned := items[:0:0]
		for _, it := range items {
			if it != removed {
				pruned = append(pruned, it)
			}
		}
		if len(pruned) != len(items) {
			// copy-on-write, as in Mutate: never edit a frozen snapshot
			// whose SnapshotID is shared with the base frame
			if !obj.IsNew && obj.Snapshot.State != object.StateTransient {
				obj.Snapshot = obj.Snapshot.Derive(t.design.allocSnapshotID())
			}
			obj.Snapshot.Structure.Items = pruned
		}
	}
}

// Mutate returns a pointer to the working object for in-place editing
// (attribute writes, ordered-set membership changes). If this is the first
// touch of an object carried over unmodified from the base frame, a fresh
// derived snapshot (new SnapshotID) is installed first (copy-on-write).
func (t *TransientFrame) Mutate(id object.ObjectID) (*object.TransientObject, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	obj, ok := t.objects[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownObject, "%d", id)
	}
	if !obj.IsNew && obj.Snapshot.State != object.StateTransient {
		obj.Snapshot = obj.Snapshot.Derive(t.design.allocSnapshotID())
	}
	return obj, nil
}

// SetAttribute validates and writes a single attribute on an existing
// object, failing with ErrUnknownAttribute if the key is not declared by any
// trait of the object's type.
func (t *TransientFrame) SetAttribute(id object.ObjectID, key string, v variant.Variant) error {
	obj, err := t.Mutate(id)
	if err != nil {
		return err
	}
	attr, err := t.design.metamodel.Attribute(obj.Snapshot.TypeName, key)
	if err != nil {
		return errors.Wrapf(ErrUnknownAttribute, "%q on %q", key, obj.Snapshot.TypeName)
	}
	if attr.Type != v.Type() {
		return errors.Wrapf(ErrStructuralMismatch, "attribute %q expects %s, got %s", key, attr.Type, v.Type())
	}
	obj.SetAttribute(key, v)
	return nil
}

// InsertOrderedSetItem inserts an item reference into an orderedSet object's
// item list at index at; an at outside [0, len(items)] appends it at the
// end. The reference is advisory: accept does not require the
// referenced object to exist, and it is silently pruned on removal.
func (t *TransientFrame) InsertOrderedSetItem(setID, item object.ObjectID, at int) error {
	obj, err := t.Mutate(setID)
	if err != nil {
		return err
	}
	if obj.Snapshot.Structure.Kind != object.KindOrderedSet {
		return errors.Wrapf(ErrStructuralMismatch, "%d is not an orderedSet", setID)
	}
	items := obj.Snapshot.Structure.Items
	if at < 0 || at > len(items) {
		at = len(items)
	}
	items = append(items, 0)
	copy(items[at+1:], items[at:])
	items[at] = item
	obj.Snapshot.Structure.Items = items
	return nil
}

// Design owns the metamodel, every accepted snapshot and installed frame
// still reachable from history, and the linear undo/redo history. It is the sole owner of all
// storage; frames and snapshots hold bare IDs into Design's pools rather
// than back-references, resolving the cyclic-ownership hazard spec §9
// calls out.
type Design struct {
	metamodel *metamodel.Metamodel

	pool       map[object.SnapshotID]object.Snapshot
	frames     map[FrameID]*DesignFrame
	namedFrames map[string]FrameID

	current FrameID
	undo    []FrameID
	redo    []FrameID

	// refcount counts, per SnapshotID, the frames it was installed in. It
	// is only ever incremented; gc does not read it and decides liveness
	// by reachability instead.
	refcount map[object.SnapshotID]int

	nextSnapshotID object.SnapshotID
	nextFrameID    FrameID
}

// OpenDesign creates an empty Design over the given metamodel, with a single
// empty current frame (spec §6's `openDesign(metamodel) → Design`).
func OpenDesign(mm *metamodel.Metamodel) *Design {
	d := &Design{
		metamodel:   mm,
		pool:        make(map[object.SnapshotID]object.Snapshot),
		frames:      make(map[FrameID]*DesignFrame),
		namedFrames: make(map[string]FrameID),
		refcount:    make(map[object.SnapshotID]int),
	}
	d.nextFrameID = 1
	empty := &DesignFrame{id: d.nextFrameID, design: d, snapshots: map[object.ObjectID]object.SnapshotID{}}
	d.frames[empty.id] = empty
	d.current = empty.id
	return d
}

func (d *Design) allocSnapshotID() object.SnapshotID {
	d.nextSnapshotID++
	return d.nextSnapshotID
}

// Metamodel returns the metamodel this design was opened with.
func (d *Design) Metamodel() *metamodel.Metamodel { return d.metamodel }

// CurrentFrame returns the currently installed DesignFrame.
func (d *Design) CurrentFrame() *DesignFrame { return d.frames[d.current] }

// Frame looks up a frame by ID.
func (d *Design) Frame(id FrameID) (*DesignFrame, error) {
	f, ok := d.frames[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFrame, "%d", id)
	}
	return f, nil
}

// NamedFrame looks up a frame by its user-assigned label.
func (d *Design) NamedFrame(name string) (*DesignFrame, error) {
	id, ok := d.namedFrames[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFrame, "named %q", name)
	}
	return d.Frame(id)
}

// NameFrame binds a user label to a frame ID. A collision replaces the
// prior binding, per spec §4.D.
func (d *Design) NameFrame(id FrameID, name string) error {
	if _, err := d.Frame(id); err != nil {
		return err
	}
	d.namedFrames[name] = id
	return nil
}

// CreateFrame starts a new TransientFrame, copy-on-write over base (the
// current frame if base is nil).
func (d *Design) CreateFrame(base *FrameID) (*TransientFrame, error) {
	baseID := d.current
	if base != nil {
		baseID = *base
	}
	baseFrame, ok := d.frames[baseID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFrame, "base %d", baseID)
	}

	t := &TransientFrame{
		design:  d,
		base:    baseID,
		objects: make(map[object.ObjectID]*object.TransientObject, len(baseFrame.snapshots)),
	}
	var maxID object.ObjectID
	for id, sid := range baseFrame.snapshots {
		snap := d.pool[sid]
		t.objects[id] = &object.TransientObject{Snapshot: snap, IsNew: false}
		if id > maxID {
			maxID = id
		}
	}
	t.nextObjectID = maxID
	return t, nil
}

// Discard marks a transient frame as closed without installing it. Safe to
// call more than once (idempotent), per spec §4.D.
func (d *Design) Discard(t *TransientFrame) {
	t.state = transientDiscarded
}

// History returns the ID of every frame the design still holds (current,
// undo and redo stacks, named frames), ascending; frames that gc has
// dropped are not listed. Supplemented beyond spec §4.D's operation table to give callers
// (eg: a CLI `log` command) something to enumerate without walking undo/redo
// stacks by hand.
func (d *Design) History() []FrameID {
	ids := make([]FrameID, 0, len(d.frames))
	for id := range d.frames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UndoStack returns the current undo stack, oldest first: repeated Undo
// calls make its frames current starting from the end of the slice.
func (d *Design) UndoStack() []FrameID { return append([]FrameID(nil), d.undo...) }

// RedoStack returns the current redo stack, oldest first.
func (d *Design) RedoStack() []FrameID { return append([]FrameID(nil), d.redo...) }

// CanUndo reports whether Undo would succeed.
func (d *Design) CanUndo() bool { return len(d.undo) > 0 }

// CanRedo reports whether Redo would succeed.
func (d *Design) CanRedo() bool { return len(d.redo) > 0 }

// Undo makes the previous frame current, pushing the current frame onto the
// redo stack.
func (d *Design) Undo() error {
	if !d.CanUndo() {
		return ErrNoUndo
	}
	prev := d.undo[len(d.undo)-1]
	d.undo = d.undo[:len(d.undo)-1]
	d.redo = append(d.redo, d.current)
	d.current = prev
	return nil
}

// Redo makes the next (previously undone) frame current, pushing the
// current frame onto the undo stack.
func (d *Design) Redo() error {
	if !d.CanRedo() {
		return ErrNoRedo
	}
	next := d.redo[len(d.redo)-1]
	d.redo = d.redo[:len(d.redo)-1]
	d.undo = append(d.undo, d.current)
	d.current = next
	return nil
}

// ConstraintViolation names a failed constraint and the ObjectIDs that
// violated it.
type ConstraintViolation struct {
	Constraint string
	ObjectIDs  []object.ObjectID
}

// Error implements the error interface.
func (v ConstraintViolation) Error() string {
	return fmt.Sprintf("%s: constraint %q violated by %v", ErrConstraintViolation, v.Constraint, v.ObjectIDs)
}

// FrameStructuralError describes a dangling structural reference found
// during accept's structural-integrity pass.
type FrameStructuralError struct {
	ObjectID  object.ObjectID
	Reference object.ObjectID
	Detail    string
}

// Error implements the error interface.
func (e FrameStructuralError) Error() string {
	return fmt.Sprintf("%s: object %d references missing %d: %s", ErrFrameStructural, e.ObjectID, e.Reference, e.Detail)
}

// EdgeRuleViolation describes an edge whose endpoints or cardinality break
// a metamodel edge rule.
type EdgeRuleViolation struct {
	EdgeID object.ObjectID
	Rule   string
}

// Error implements the error interface.
func (e EdgeRuleViolation) Error() string {
	return fmt.Sprintf("%s: edge %d breaks rule %q", ErrEdgeRuleViolation, e.EdgeID, e.Rule)
}

// Accept runs the 5-step accept algorithm of spec §4.D over a transient
// frame: structural integrity, schema validity, edge rules, constraint
// checking, then installation. base must equal the design's current frame
// (StaleBase otherwise — spec §5's last-writer-wins precondition). On any
// failure the design is left unchanged and the transient frame remains
// open/editable.
func (d *Design) Accept(t *TransientFrame) (*DesignFrame, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	if t.base != d.current {
		return nil, ErrStaleBase
	}

	if err := d.checkStructuralIntegrity(t); err != nil {
		return nil, err
	}
	if err := d.checkSchemaValidity(t); err != nil {
		return nil, err
	}
	if err := d.checkEdgeRules(t); err != nil {
		return nil, err
	}
	if err := d.checkConstraints(t); err != nil {
		return nil, err
	}

	frame := d.install(t)
	t.state = transientAccepted
	return frame, nil
}

func (d *Design) checkStructuralIntegrity(t *TransientFrame) error {
	var err error
	for id, obj := range t.objects {
		for _, dep := range obj.Snapshot.Structure.Dependencies() {
			if _, ok := t.objects[dep]; !ok {
				err = errwrap.Append(err, "structural-integrity", FrameStructuralError{ObjectID: id, Reference: dep, Detail: "structural dependency missing from frame"})
			}
		}
		if obj.Snapshot.Parent != nil {
			if _, ok := t.objects[*obj.Snapshot.Parent]; !ok {
				err = errwrap.Append(err, "structural-integrity", FrameStructuralError{ObjectID: id, Reference: *obj.Snapshot.Parent, Detail: "parent missing from frame"})
			}
		}
	}
	return err
}

func (d *Design) checkSchemaValidity(t *TransientFrame) error {
	var err error
	for id, obj := range t.objects {
		attrs, aerr := d.metamodel.Attributes(obj.Snapshot.TypeName)
		if aerr != nil {
			err = errwrap.Append(err, "schema-validity", errors.Wrapf(aerr, "object %d", id))
			continue
		}
		declared := make(map[string]metamodel.Attribute, len(attrs))
		for _, a := range attrs {
			declared[a.Name] = a
		}
		for key, v := range obj.Snapshot.Attributes {
			a, ok := declared[key]
			if !ok {
				err = errwrap.Append(err, "schema-validity", errors.Wrapf(ErrUnknownAttribute, "object %d attribute %q", id, key))
				continue
			}
			if a.Type != v.Type() {
				err = errwrap.Append(err, "schema-validity", errors.Wrapf(ErrStructuralMismatch, "object %d attribute %q: expected %s, got %s", id, key, a.Type, v.Type()))
			}
		}
		for _, a := range attrs {
			if a.Optional || a.HasDefault() {
				continue
			}
			if _, present := obj.Snapshot.Attributes[a.Name]; !present {
				err = errwrap.Append(err, "schema-validity", errors.Wrapf(ErrUnknownAttribute, "object %d missing required attribute %q", id, a.Name))
			}
		}
	}
	return err
}

func (d *Design) checkEdgeRules(t *TransientFrame) error {
	var err error
	for id, obj := range t.objects {
		if obj.Snapshot.Structure.Kind != object.KindEdge {
			continue
		}
		rule, ok := d.metamodel.EdgeRule(obj.Snapshot.TypeName)
		if !ok {
			continue
		}
		origin, originOK := t.objects[obj.Snapshot.Structure.Origin]
		target, targetOK := t.objects[obj.Snapshot.Structure.Target]
		if !originOK || !typeIn(origin.Snapshot.TypeName, rule.OriginTypes) {
			err = errwrap.Append(err, obj.Snapshot.TypeName, EdgeRuleViolation{EdgeID: id, Rule: obj.Snapshot.TypeName + ": origin type"})
		}
		if !targetOK || !typeIn(target.Snapshot.TypeName, rule.TargetTypes) {
			err = errwrap.Append(err, obj.Snapshot.TypeName, EdgeRuleViolation{EdgeID: id, Rule: obj.Snapshot.TypeName + ": target type"})
		}
		if rule.MaxPerOrigin > 0 && originOK {
			if count := d.countEdgesFromOrigin(t, obj.Snapshot.Structure.Origin, obj.Snapshot.TypeName); count > rule.MaxPerOrigin {
				err = errwrap.Append(err, obj.Snapshot.TypeName, EdgeRuleViolation{EdgeID: id, Rule: obj.Snapshot.TypeName + ": max per origin exceeded"})
			}
		}
		if rule.MaxPerTarget > 0 && targetOK {
			if count := d.countEdgesToTarget(t, obj.Snapshot.Structure.Target, obj.Snapshot.TypeName); count > rule.MaxPerTarget {
				err = errwrap.Append(err, obj.Snapshot.TypeName, EdgeRuleViolation{EdgeID: id, Rule: obj.Snapshot.TypeName + ": max per target exceeded"})
			}
		}
	}
	return err
}

func typeIn(name string, types []string) bool {
	for _, t := range types {
		if t == name {
			return true
		}
	}
	return false
}

func (d *Design) countEdgesFromOrigin(t *TransientFrame, origin object.ObjectID, edgeType string) int {
	count := 0
	for _, obj := range t.objects {
		if obj.Snapshot.TypeName == edgeType && obj.Snapshot.Structure.Kind == object.KindEdge && obj.Snapshot.Structure.Origin == origin {
			count++
		}
	}
	return count
}

func (d *Design) countEdgesToTarget(t *TransientFrame, target object.ObjectID, edgeType string) int {
	count := 0
	for _, obj := range t.objects {
		if obj.Snapshot.TypeName == edgeType && obj.Snapshot.Structure.Kind == object.KindEdge && obj.Snapshot.Structure.Target == target {
			count++
		}
	}
	return count
}

// traitsOf adapts the metamodel's trait lookup to the closure shape
// predicate.HasTrait needs, keeping predicate free of a metamodel
// dependency.
func (d *Design) traitsOf(typeName string) []string {
	ot, err := d.metamodel.ObjectType(typeName)
	if err != nil {
		return nil
	}
	return ot.Traits
}

// checkConstraints runs every metamodel constraint over the transient
// frame, in frame order, accumulating violations from all constraints
// before returning (spec §4.D step 4, §5's full-report mode). Use
// CheckConstraintsEarlyExit for the early-exit variant.
func (d *Design) checkConstraints(t *TransientFrame) error {
	ids := t.ObjectIDs()
	var err error
	for _, c := range d.metamodel.Constraints() {
		matched := predicate.Match(withTraits(c.Match, d), ids, t)
		violations := c.Requirement.CheckFull(matched, t)
		if len(violations) > 0 {
			err = errwrap.Append(err, c.Name, ConstraintViolation{Constraint: c.Name, ObjectIDs: violations})
		}
	}
	return err
}

// CheckConstraintsEarlyExit runs the same constraint set as checkConstraints
// but stops at the first violation found across all constraints, returning
// it immediately; used by callers that only need a quick validity check
// (spec §5's early-exit mode).
func (d *Design) CheckConstraintsEarlyExit(t *TransientFrame) error {
	ids := t.ObjectIDs()
	for _, c := range d.metamodel.Constraints() {
		matched := predicate.Match(withTraits(c.Match, d), ids, t)
		violations := c.Requirement.CheckEarlyExit(matched, t)
		if len(violations) > 0 {
			return ConstraintViolation{Constraint: c.Name, ObjectIDs: violations}
		}
	}
	return nil
}

// withTraits recursively rewires any predicate.HasTrait leaf in pred to use
// d's metamodel for trait lookups, so metamodel authors can construct
// HasTrait{Trait: "..."} without a TraitsOf closure of their own.
func withTraits(pred predicate.Predicate, d *Design) predicate.Predicate {
	switch p := pred.(type) {
	case predicate.HasTrait:
		if p.TraitsOf == nil {
			p.TraitsOf = d.traitsOf
		}
		return p
	case predicate.And:
		out := make([]predicate.Predicate, len(p.Of))
		for i, sub := range p.Of {
			out[i] = withTraits(sub, d)
		}
		return predicate.And{Of: out}
	case predicate.Or:
		out := make([]predicate.Predicate, len(p.Of))
		for i, sub := range p.Of {
			out[i] = withTraits(sub, d)
		}
		return predicate.Or{Of: out}
	case predicate.Not:
		return predicate.Not{Of: withTraits(p.Of, d)}
	default:
		return pred
	}
}

// install freezes every transient object into the design's snapshot pool,
// allocates a new FrameID, and makes it current, pushing the previous
// current onto the undo stack and clearing redo (spec §4.D step 5).
func (d *Design) install(t *TransientFrame) *DesignFrame {
	d.nextFrameID++
	frame := &DesignFrame{id: d.nextFrameID, design: d, snapshots: make(map[object.ObjectID]object.SnapshotID, len(t.objects))}
	for id, obj := range t.objects {
		obj.Snapshot.State = object.StateFrozen
		d.pool[obj.Snapshot.SnapshotID] = obj.Snapshot
		frame.snapshots[id] = obj.Snapshot.SnapshotID
		d.refcount[obj.Snapshot.SnapshotID]++
	}
	d.frames[frame.id] = frame
	d.undo = append(d.undo, d.current)
	d.redo = nil
	d.current = frame.id
	d.gc()
	return frame
}

// gc drops every frame not reachable from history (current plus undo/redo
// stacks and named frames), then every snapshot that no remaining frame
// references. Liveness is recomputed by reachability on each call; refcount
// is not consulted.
func (d *Design) gc() {
	reachable := map[FrameID]bool{d.current: true}
	for _, id := range d.undo {
		reachable[id] = true
	}
	for _, id := range d.redo {
		reachable[id] = true
	}
	for _, id := range d.namedFrames {
		reachable[id] = true
	}

	live := make(map[object.SnapshotID]bool)
	for id, frame := range d.frames {
		if !reachable[id] {
			continue
		}
		for _, sid := range frame.snapshots {
			live[sid] = true
		}
	}
	for id := range d.frames {
		if !reachable[id] {
			delete(d.frames, id)
		}
	}
	for sid := range d.pool {
		if !live[sid] {
			delete(d.pool, sid)
			delete(d.refcount, sid)
		}
	}
}

// Dump renders a human-readable, deeply-expanded representation of the
// design's current state, using litter the way a CLI debug command would.
func (d *Design) Dump() string {
	return litter.Sdump(struct {
		Current  FrameID
		Undo     []FrameID
		Redo     []FrameID
		Snapshots int
	}{
		Current:   d.current,
		Undo:      d.undo,
		Redo:      d.redo,
		Snapshots: len(d.pool),
	})
}
