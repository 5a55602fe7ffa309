package object

import (
	"testing"

	"github.com/purpleidea/poietic-core/internal/variant"
)

func TestStructureDependencies(t *testing.T) {
	cases := []struct {
		name string
		s    Structure
		want []ObjectID
	}{
		{"unstructured", Unstructured(), nil},
		{"node", Node(), nil},
		{"edge", Edge(1, 2), []ObjectID{1, 2}},
		{"orderedSet", OrderedSet(5, []ObjectID{7, 8, 9}), []ObjectID{5}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.s.Dependencies()
			if len(got) != len(c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Errorf("got %v, want %v", got, c.want)
				}
			}
		})
	}
}

func TestOrderedSetItemsAreNotAStructuralDependency(t *testing.T) {
	s := OrderedSet(1, []ObjectID{2, 3, 4})
	deps := s.Dependencies()
	if len(deps) != 1 || deps[0] != 1 {
		t.Errorf("expected only the owner as a dependency, got %v", deps)
	}
}

func baseSnapshot() Snapshot {
	return Snapshot{
		ObjectID:   1,
		SnapshotID: 1,
		TypeName:   "stock",
		Structure:  Node(),
		Attributes: map[string]variant.Variant{"formula": variant.String("100")},
		State:      StateFrozen,
	}
}

func TestHashStableAcrossEqualSnapshots(t *testing.T) {
	a := baseSnapshot()
	b := baseSnapshot()
	if a.Hash() != b.Hash() {
		t.Errorf("expected equal snapshots to hash the same, got %d vs %d", a.Hash(), b.Hash())
	}
}

func TestHashChangesWithAttributeValue(t *testing.T) {
	a := baseSnapshot()
	b := baseSnapshot()
	b.Attributes["formula"] = variant.String("200")
	if a.Hash() == b.Hash() {
		t.Error("expected differing attribute values to hash differently")
	}
}

func TestHashIndependentOfAttributeInsertionOrder(t *testing.T) {
	a := Snapshot{
		ObjectID: 1, SnapshotID: 1, TypeName: "stock", Structure: Node(),
		Attributes: map[string]variant.Variant{},
	}
	a.Attributes["x"] = variant.Int(1)
	a.Attributes["y"] = variant.Int(2)

	b := Snapshot{
		ObjectID: 1, SnapshotID: 1, TypeName: "stock", Structure: Node(),
		Attributes: map[string]variant.Variant{},
	}
	b.Attributes["y"] = variant.Int(2)
	b.Attributes["x"] = variant.Int(1)

	if a.Hash() != b.Hash() {
		t.Error("expected map iteration order to not affect the hash")
	}
}

func TestDerivePreservesIdentityAndResetsState(t *testing.T) {
	orig := baseSnapshot()
	derived := orig.Derive(99)

	if derived.ObjectID != orig.ObjectID {
		t.Errorf("expected ObjectID to be preserved, got %d", derived.ObjectID)
	}
	if derived.SnapshotID != 99 {
		t.Errorf("expected new SnapshotID 99, got %d", derived.SnapshotID)
	}
	if derived.State != StateTransient {
		t.Errorf("expected derived state to reset to transient, got %s", derived.State)
	}
	if orig.State != StateFrozen {
		t.Error("Derive must not mutate the receiver")
	}
}

func TestDeriveDeepCopiesAttributesAndItems(t *testing.T) {
	orig := Snapshot{
		ObjectID: 1, SnapshotID: 1, TypeName: "set",
		Structure:  OrderedSet(2, []ObjectID{3, 4}),
		Attributes: map[string]variant.Variant{"k": variant.Int(1)},
	}
	derived := orig.Derive(2)

	derived.Attributes["k"] = variant.Int(2)
	derived.Structure.Items[0] = 999

	if orig.Attributes["k"].IntValue() != 1 {
		t.Error("mutating a derived snapshot's attributes must not affect the original")
	}
	if orig.Structure.Items[0] != 3 {
		t.Error("mutating a derived snapshot's structure items must not affect the original")
	}
}

func TestWithAttributeLeavesReceiverUnmodified(t *testing.T) {
	orig := baseSnapshot()
	updated := orig.WithAttribute("formula", variant.String("999"))

	if v, _ := orig.Attribute("formula"); v.StringValue() != "100" {
		t.Error("WithAttribute must not mutate the receiver")
	}
	if v, _ := updated.Attribute("formula"); v.StringValue() != "999" {
		t.Error("expected the new snapshot to carry the updated attribute")
	}
}

func TestHashDistinguishesStructuralKind(t *testing.T) {
	node := Snapshot{ObjectID: 1, SnapshotID: 1, TypeName: "t", Structure: Node()}
	edge := Snapshot{ObjectID: 1, SnapshotID: 1, TypeName: "t", Structure: Edge(1, 2)}
	if node.Hash() == edge.Hash() {
		t.Error("expected different structural kinds to hash differently")
	}
}
