package interchange

import (
	"testing"

	"github.com/purpleidea/poietic-core/internal/metamodel"
	"github.com/purpleidea/poietic-core/internal/object"
	"github.com/purpleidea/poietic-core/internal/store"
	"github.com/purpleidea/poietic-core/internal/variant"
)

func testMetamodel() *metamodel.Metamodel {
	mm := metamodel.New("test_domain", "1.0.0")
	mm.AddTrait(metamodel.Trait{Name: "labeled", Attributes: []metamodel.Attribute{
		{Name: "label", Type: variant.TypeString, Optional: true},
	}})
	mm.AddObjectType(metamodel.ObjectType{Name: "thing", StructuralType: metamodel.StructNode, Traits: []string{"labeled"}})
	mm.AddObjectType(metamodel.ObjectType{Name: "link", StructuralType: metamodel.StructEdge})
	return mm
}

func buildDesign(t *testing.T) (*store.Design, object.ObjectID, object.ObjectID, object.ObjectID) {
	t.Helper()
	d := store.OpenDesign(testMetamodel())
	tf, err := d.CreateFrame(nil)
	if err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}
	a, _ := tf.Create("thing", object.Node(), map[string]variant.Variant{"label": variant.String("a")})
	b, _ := tf.Create("thing", object.Node(), map[string]variant.Variant{"label": variant.String("b")})
	e, err := tf.Create("link", object.Edge(a, b), nil)
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if _, err := d.Accept(tf); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return d, a, b, e
}

func TestExtractProducesAllSnapshots(t *testing.T) {
	d, a, b, e := buildDesign(t)
	raw := Extract(d)

	if raw.MetamodelName != "test_domain" {
		t.Errorf("got metamodel %q", raw.MetamodelName)
	}
	if len(raw.Snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(raw.Snapshots))
	}
	ids := map[uint64]bool{}
	for _, s := range raw.Snapshots {
		ids[s.ID] = true
	}
	for _, id := range []object.ObjectID{a, b, e} {
		if !ids[uint64(id)] {
			t.Errorf("missing object %d in extracted snapshots", id)
		}
	}
	if raw.SystemReferences["current_frame"] != uint64(d.CurrentFrame().ID()) {
		t.Errorf("current_frame reference mismatch")
	}
}

func TestExtractPrunedDropsEdgeWithMissingEndpoint(t *testing.T) {
	d, a, b, _ := buildDesign(t)
	// select only `a`, not `b`: the edge a->b must be pruned since its
	// target is outside the selected set.
	selected := map[object.ObjectID]bool{a: true}
	raw := ExtractPruned(d, selected)

	if len(raw.Snapshots) != 1 {
		t.Fatalf("expected only `a` to survive pruning, got %d snapshots", len(raw.Snapshots))
	}
	if raw.Snapshots[0].ID != uint64(a) {
		t.Errorf("expected surviving snapshot to be %d, got %d", a, raw.Snapshots[0].ID)
	}
	_ = b
}

func TestRawStructureTagsEdgeEndpoints(t *testing.T) {
	d, a, b, _ := buildDesign(t)
	raw := Extract(d)

	var edgeRaw *RawSnapshot
	for i := range raw.Snapshots {
		if raw.Snapshots[i].Structure.Kind == "edge" {
			edgeRaw = &raw.Snapshots[i]
		}
	}
	if edgeRaw == nil {
		t.Fatal("expected an edge snapshot in the extracted output")
	}
	if edgeRaw.Structure.Origin == nil || *edgeRaw.Structure.Origin != uint64(a) {
		t.Errorf("expected origin %d, got %+v", a, edgeRaw.Structure.Origin)
	}
	if edgeRaw.Structure.Target == nil || *edgeRaw.Structure.Target != uint64(b) {
		t.Errorf("expected target %d, got %+v", b, edgeRaw.Structure.Target)
	}
}

func TestYAMLRoundTripPreservesSnapshots(t *testing.T) {
	d, _, _, _ := buildDesign(t)
	raw := Extract(d)

	data, err := raw.ToYAML()
	if err != nil {
		t.Fatalf("ToYAML: %v", err)
	}
	got, err := UnmarshalRawDesignYAML(data)
	if err != nil {
		t.Fatalf("UnmarshalRawDesignYAML: %v", err)
	}
	if len(got.Snapshots) != len(raw.Snapshots) {
		t.Fatalf("expected %d snapshots after round trip, got %d", len(raw.Snapshots), len(got.Snapshots))
	}
	if got.MetamodelName != raw.MetamodelName {
		t.Errorf("metamodel name lost in round trip: got %q", got.MetamodelName)
	}
}

func TestJSONRoundTripPreservesSnapshots(t *testing.T) {
	d, _, _, _ := buildDesign(t)
	raw := Extract(d)

	data, err := raw.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	got, err := UnmarshalRawDesignJSON(data)
	if err != nil {
		t.Fatalf("UnmarshalRawDesignJSON: %v", err)
	}
	if len(got.Snapshots) != len(raw.Snapshots) {
		t.Fatalf("expected %d snapshots after round trip, got %d", len(raw.Snapshots), len(got.Snapshots))
	}
}
