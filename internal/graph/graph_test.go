package graph

import (
	"testing"

	"github.com/purpleidea/poietic-core/internal/object"
)

// memFrame is a trivial in-memory Frame used only by these tests.
type memFrame map[object.ObjectID]object.Snapshot

func (f memFrame) Snapshot(id object.ObjectID) (object.Snapshot, bool) {
	s, ok := f[id]
	return s, ok
}

func (f memFrame) ObjectIDs() []object.ObjectID {
	ids := make([]object.ObjectID, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	return ids
}

func node(id object.ObjectID) object.Snapshot {
	return object.Snapshot{ObjectID: id, Structure: object.Node()}
}

func edge(id, origin, target object.ObjectID) object.Snapshot {
	return object.Snapshot{ObjectID: id, Structure: object.Edge(origin, target)}
}

func TestTopologicalSortOrdersByDependency(t *testing.T) {
	f := memFrame{
		1: node(1),
		2: node(2),
		3: node(3),
		10: edge(10, 1, 2),
		11: edge(11, 2, 3),
	}
	v := New(f)

	order, err := v.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := make(map[object.ObjectID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos[1] >= pos[2] || pos[2] >= pos[3] {
		t.Errorf("expected order 1 < 2 < 3, got %v", order)
	}
}

func TestTopologicalSortDeterministicTieBreak(t *testing.T) {
	f := memFrame{
		1: node(1),
		2: node(2),
		3: node(3),
	}
	v := New(f)
	order, err := v.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []object.ObjectID{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("got %v, want %v", order, want)
		}
	}
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	f := memFrame{
		1:  node(1),
		2:  node(2),
		10: edge(10, 1, 2),
		11: edge(11, 2, 1),
	}
	v := New(f)

	_, err := v.TopologicalSort()
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	cyc, ok := err.(Cycle)
	if !ok {
		t.Fatalf("expected Cycle, got %T", err)
	}
	if len(cyc.Edges) != 2 {
		t.Errorf("expected both edges as cycle witness, got %v", cyc.Edges)
	}
}

func TestOutgoingIncomingNeighbours(t *testing.T) {
	f := memFrame{
		1:  node(1),
		2:  node(2),
		3:  node(3),
		10: edge(10, 1, 2),
		11: edge(11, 3, 1),
	}
	v := New(f)

	out := v.Outgoing(1)
	if len(out) != 1 || out[0].ObjectID != 10 {
		t.Errorf("Outgoing(1) = %v, want [10]", out)
	}

	in := v.Incoming(1)
	if len(in) != 1 || in[0].ObjectID != 11 {
		t.Errorf("Incoming(1) = %v, want [11]", in)
	}

	neigh := v.Neighbours(1)
	if len(neigh) != 2 {
		t.Errorf("Neighbours(1) = %v, want 2 edges", neigh)
	}
}

func TestHoodWithPredicate(t *testing.T) {
	f := memFrame{
		1:  node(1),
		2:  node(2),
		3:  node(3),
		10: edge(10, 1, 2),
		11: edge(11, 1, 3),
	}
	v := New(f)

	onlyTo3 := func(e object.Snapshot) bool { return e.Structure.Target == 3 }
	hood := v.Hood(1, Outgoing, onlyTo3)
	if len(hood) != 1 || hood[0].ObjectID != 11 {
		t.Errorf("Hood filtered = %v, want [11]", hood)
	}
}

func TestNodeIDsAreSorted(t *testing.T) {
	f := memFrame{
		3: node(3),
		1: node(1),
		2: node(2),
	}
	v := New(f)
	ids := v.NodeIDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Errorf("NodeIDs() not sorted: %v", ids)
		}
	}
}
