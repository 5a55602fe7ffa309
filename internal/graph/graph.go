// Package graph provides the graph-as-a-view projection over a frame's
// snapshot index: node/edge enumeration, incoming/outgoing/neighbourhood
// queries, and topological sort with cycle detection.
//
// Grounded on pgraph/pgraph.go's Adjacency map and Kahn's-algorithm
// TopologicalSort, adapted from a mutable *Vertex-keyed graph to a
// read-only view recomputed from whatever snapshot index a Frame exposes.
package graph

import (
	"sort"

	"github.com/purpleidea/poietic-core/internal/errwrap"
	"github.com/purpleidea/poietic-core/internal/object"
)

// Errors returned by this package.
const (
	ErrCycle = errwrap.ConstError("graph: cycle detected")
)

// Frame is the minimal read-only surface a graph View needs: a way to look
// up every snapshot by ObjectID. internal/store.DesignFrame and
// internal/store.TransientFrame both satisfy this.
type Frame interface {
	Snapshot(id object.ObjectID) (object.Snapshot, bool)
	ObjectIDs() []object.ObjectID
}

// View is a graph projection over a Frame, computed fresh on construction
// (the "default O(E) scan" variant spec §4.E describes; callers that need
// repeated incoming/outgoing lookups should build one View and reuse it
// rather than reconstructing it per query).
type View struct {
	frame Frame

	nodeIDs []object.ObjectID
	edgeIDs []object.ObjectID

	// outAdj/inAdj map a node ObjectID to the edge ObjectIDs leaving/
	// entering it, mirroring pgraph.Graph's Adjacency map-of-maps but
	// keyed by snapshot-level ObjectIDs instead of *Vertex pointers.
	outAdj map[object.ObjectID][]object.ObjectID
	inAdj  map[object.ObjectID][]object.ObjectID
}

// New builds a graph View over the given Frame.
func New(frame Frame) *View {
	v := &View{
		frame:  frame,
		outAdj: make(map[object.ObjectID][]object.ObjectID),
		inAdj:  make(map[object.ObjectID][]object.ObjectID),
	}
	for _, id := range frame.ObjectIDs() {
		snap, ok := frame.Snapshot(id)
		if !ok {
			continue
		}
		switch snap.Structure.Kind {
		case object.KindNode:
			v.nodeIDs = append(v.nodeIDs, id)
		case object.KindEdge:
			v.edgeIDs = append(v.edgeIDs, id)
			v.outAdj[snap.Structure.Origin] = append(v.outAdj[snap.Structure.Origin], id)
			v.inAdj[snap.Structure.Target] = append(v.inAdj[snap.Structure.Target], id)
		}
	}
	sortIDs(v.nodeIDs)
	sortIDs(v.edgeIDs)
	return v
}

func sortIDs(ids []object.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// NodeIDs returns every node ObjectID in the frame, ascending order.
func (v *View) NodeIDs() []object.ObjectID { return append([]object.ObjectID(nil), v.nodeIDs...) }

// EdgeIDs returns every edge ObjectID in the frame, ascending order.
func (v *View) EdgeIDs() []object.ObjectID { return append([]object.ObjectID(nil), v.edgeIDs...) }

// Nodes returns every node snapshot in the frame, ascending ObjectID order.
func (v *View) Nodes() []object.Snapshot { return v.snapshotsOf(v.nodeIDs) }

// Edges returns every edge snapshot in the frame, ascending ObjectID order.
func (v *View) Edges() []object.Snapshot { return v.snapshotsOf(v.edgeIDs) }

func (v *View) snapshotsOf(ids []object.ObjectID) []object.Snapshot {
	out := make([]object.Snapshot, 0, len(ids))
	for _, id := range ids {
		if s, ok := v.frame.Snapshot(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Direction selects which side of an edge a neighbourhood query follows.
type Direction int

// The directions a neighbourhood query can follow.
const (
	Outgoing Direction = iota
	Incoming
	Both
)

// Outgoing returns the edge snapshots leaving node n, ascending ObjectID.
func (v *View) Outgoing(n object.ObjectID) []object.Snapshot { return v.snapshotsOf(v.sortedCopy(v.outAdj[n])) }

// Incoming returns the edge snapshots entering node n, ascending ObjectID.
func (v *View) Incoming(n object.ObjectID) []object.Snapshot { return v.snapshotsOf(v.sortedCopy(v.inAdj[n])) }

// Neighbours returns every edge incident to node n in either direction,
// ascending ObjectID, de-duplicated (a self-loop is reported once).
func (v *View) Neighbours(n object.ObjectID) []object.Snapshot {
	ids := append(v.sortedCopy(v.outAdj[n]), v.sortedCopy(v.inAdj[n])...)
	seen := make(map[object.ObjectID]bool, len(ids))
	var uniq []object.ObjectID
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	sortIDs(uniq)
	return v.snapshotsOf(uniq)
}

func (v *View) sortedCopy(ids []object.ObjectID) []object.ObjectID {
	cp := append([]object.ObjectID(nil), ids...)
	sortIDs(cp)
	return cp
}

// EdgePredicate filters edges during a Hood query. Package predicate's
// Predicate values satisfy this via a small adapter at the call site.
type EdgePredicate func(edge object.Snapshot) bool

// Hood returns the neighbourhood of node n in the given direction, filtered
// to edges matching pred (nil matches every edge).
func (v *View) Hood(n object.ObjectID, dir Direction, pred EdgePredicate) []object.Snapshot {
	var candidates []object.Snapshot
	switch dir {
	case Outgoing:
		candidates = v.Outgoing(n)
	case Incoming:
		candidates = v.Incoming(n)
	default:
		candidates = v.Neighbours(n)
	}
	if pred == nil {
		return candidates
	}
	out := make([]object.Snapshot, 0, len(candidates))
	for _, e := range candidates {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// Cycle is returned by TopologicalSort when the edge set contains a cycle:
// the edge ObjectIDs that were never removed from the working set (a
// witness to the cycle, per spec §4.E).
type Cycle struct {
	Edges []object.ObjectID
}

// Error implements the error interface so Cycle can be returned/wrapped as
// an error value (matching the ErrCycle sentinel above for errors.Is-style
// matching by callers that don't need the edge witness).
func (c Cycle) Error() string { return string(ErrCycle) }

// TopologicalSort orders the node IDs so that for every edge u->v,
// index(u) < index(v). Uses Kahn's algorithm with ascending-ObjectID
// tie-breaking for determinism, adapted from pgraph.Graph.TopologicalSort
// (mgmt's version only reports ok bool on failure; this one also returns
// the surviving edge set as a Cycle witness).
func (v *View) TopologicalSort() ([]object.ObjectID, error) {
	inDegree := make(map[object.ObjectID]int, len(v.nodeIDs))
	for _, n := range v.nodeIDs {
		inDegree[n] = 0
	}
	for _, eid := range v.edgeIDs {
		e, ok := v.frame.Snapshot(eid)
		if !ok {
			continue
		}
		inDegree[e.Structure.Target]++
	}

	var ready []object.ObjectID
	for _, n := range v.nodeIDs {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sortIDs(ready)

	var order []object.ObjectID
	remaining := make(map[object.ObjectID]int, len(inDegree))
	for k, d := range inDegree {
		remaining[k] = d
	}
	removedEdges := make(map[object.ObjectID]bool, len(v.edgeIDs))

	for len(ready) > 0 {
		// pop the smallest ObjectID for a deterministic order
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		outgoing := v.sortedCopy(v.outAdj[n])
		for _, eid := range outgoing {
			e, ok := v.frame.Snapshot(eid)
			if !ok {
				continue
			}
			removedEdges[eid] = true
			target := e.Structure.Target
			remaining[target]--
			if remaining[target] == 0 {
				ready = insertSorted(ready, target)
			}
		}
	}

	if len(order) == len(v.nodeIDs) {
		return order, nil
	}

	var survivors []object.ObjectID
	for _, eid := range v.edgeIDs {
		if !removedEdges[eid] {
			survivors = append(survivors, eid)
		}
	}
	sortIDs(survivors)
	return nil, Cycle{Edges: survivors}
}

func insertSorted(ids []object.ObjectID, id object.ObjectID) []object.ObjectID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// Cycles returns the edge set that prevents a topological sort, or an empty
// slice if the graph is a DAG. Convenience wrapper over TopologicalSort used
// by callers that only care about cycle detection.
func (v *View) Cycles() []object.ObjectID {
	_, err := v.TopologicalSort()
	if err == nil {
		return nil
	}
	if c, ok := err.(Cycle); ok {
		return c.Edges
	}
	return nil
}
