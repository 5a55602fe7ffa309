package store

import (
	"errors"
	"testing"

	"github.com/purpleidea/poietic-core/internal/metamodel"
	"github.com/purpleidea/poietic-core/internal/object"
	"github.com/purpleidea/poietic-core/internal/predicate"
	"github.com/purpleidea/poietic-core/internal/variant"
)

// stockFlowMetamodel builds a small metamodel mirroring spec §8's
// end-to-end Stock-and-Flow scenarios: stock/flow/auxiliary node types and
// two edge types whose endpoint-type constraints a flow must satisfy.
func stockFlowMetamodel() *metamodel.Metamodel {
	mm := metamodel.New("stock_and_flow", "1.0.0")

	mm.AddTrait(metamodel.Trait{
		Name: "formula",
		Attributes: []metamodel.Attribute{
			{Name: "formula", Type: variant.TypeString},
		},
	})

	mm.AddObjectType(metamodel.ObjectType{Name: "stock", StructuralType: metamodel.StructNode, Traits: []string{"formula"}})
	mm.AddObjectType(metamodel.ObjectType{Name: "flow", StructuralType: metamodel.StructNode, Traits: []string{"formula"}})
	mm.AddObjectType(metamodel.ObjectType{Name: "auxiliary", StructuralType: metamodel.StructNode, Traits: []string{"formula"}})
	mm.AddObjectType(metamodel.ObjectType{Name: "drains", StructuralType: metamodel.StructEdge})
	mm.AddObjectType(metamodel.ObjectType{Name: "fills", StructuralType: metamodel.StructEdge})

	isStock := predicate.IsType{Types: []string{"stock"}}

	mm.AddConstraint(metamodel.Constraint{
		Name: "flow_drain_is_stock",
		Match: predicate.IsType{Types: []string{"drains"}},
		Requirement: predicate.EdgeEndpointTypes{Origin: isStock},
	})
	mm.AddConstraint(metamodel.Constraint{
		Name: "flow_fill_is_stock",
		Match: predicate.IsType{Types: []string{"fills"}},
		Requirement: predicate.EdgeEndpointTypes{Target: isStock},
	})
	return mm
}

func formulaAttrs(v string) map[string]variant.Variant {
	return map[string]variant.Variant{"formula": variant.String(v)}
}

func TestAcceptStockFlowScenarioSucceeds(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())
	tf, err := d.CreateFrame(nil)
	if err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}

	s1, _ := tf.Create("stock", object.Node(), formulaAttrs("100"))
	f, _ := tf.Create("flow", object.Node(), formulaAttrs("10"))
	s2, _ := tf.Create("stock", object.Node(), formulaAttrs("0"))
	if _, err := tf.Create("drains", object.Edge(s1, f), nil); err != nil {
		t.Fatalf("create drains edge: %v", err)
	}
	if _, err := tf.Create("fills", object.Edge(f, s2), nil); err != nil {
		t.Fatalf("create fills edge: %v", err)
	}

	frame, err := d.Accept(tf)
	if err != nil {
		t.Fatalf("expected accept to succeed, got %v", err)
	}

	order, err := frame.Graph().TopologicalSort()
	if err != nil {
		t.Fatalf("expected a valid topological order, got error %v", err)
	}
	pos := make(map[object.ObjectID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos[s1] >= pos[f] || pos[f] >= pos[s2] {
		t.Errorf("expected s1 < f < s2 in topological order, got %v", order)
	}
}

func TestAcceptViolatesFlowEndpointConstraint(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())
	tf, _ := d.CreateFrame(nil)

	aux, _ := tf.Create("auxiliary", object.Node(), formulaAttrs("1"))
	f, _ := tf.Create("flow", object.Node(), formulaAttrs("10"))
	if _, err := tf.Create("drains", object.Edge(aux, f), nil); err != nil {
		t.Fatalf("create drains edge: %v", err)
	}

	before := d.CurrentFrame()
	_, err := d.Accept(tf)
	if err == nil {
		t.Fatal("expected accept to fail on endpoint-type violation")
	}
	var cv ConstraintViolation
	if !errors.As(err, &cv) {
		t.Fatalf("expected a ConstraintViolation in the error chain, got %T: %v", err, err)
	}
	if cv.Constraint != "flow_drain_is_stock" {
		t.Errorf("got constraint %q, want flow_drain_is_stock", cv.Constraint)
	}
	if d.CurrentFrame() != before {
		t.Error("current frame must be unchanged after a failed accept")
	}
}

func TestCascadingDeleteRemovesDependentEdge(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())
	tf, _ := d.CreateFrame(nil)
	s1, _ := tf.Create("stock", object.Node(), formulaAttrs("100"))
	f, _ := tf.Create("flow", object.Node(), formulaAttrs("10"))
	edgeID, _ := tf.Create("drains", object.Edge(s1, f), nil)
	if _, err := d.Accept(tf); err != nil {
		t.Fatalf("initial accept failed: %v", err)
	}

	tf2, err := d.CreateFrame(nil)
	if err != nil {
		t.Fatalf("CreateFrame: %v", err)
	}
	removed, err := tf2.RemoveCascading(s1)
	if err != nil {
		t.Fatalf("RemoveCascading: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected s1 and the drains edge removed, got %v", removed)
	}

	frame, err := d.Accept(tf2)
	if err != nil {
		t.Fatalf("accept after cascading delete failed: %v", err)
	}
	if _, ok := frame.Snapshot(s1); ok {
		t.Error("s1 should have been removed")
	}
	if _, ok := frame.Snapshot(edgeID); ok {
		t.Error("drains edge should have been cascaded away")
	}
	if _, ok := frame.Snapshot(f); !ok {
		t.Error("flow node should still be present")
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())

	tfa, _ := d.CreateFrame(nil)
	s1, _ := tfa.Create("stock", object.Node(), formulaAttrs("1"))
	fa, err := d.Accept(tfa)
	if err != nil {
		t.Fatalf("accept a: %v", err)
	}

	tfb, _ := d.CreateFrame(nil)
	s2, _ := tfb.Create("stock", object.Node(), formulaAttrs("2"))
	fb, err := d.Accept(tfb)
	if err != nil {
		t.Fatalf("accept b: %v", err)
	}

	if !d.CanUndo() {
		t.Fatal("expected undo to be available")
	}
	if err := d.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if d.CurrentFrame().ID() != fa.ID() {
		t.Errorf("after undo, current = %d, want %d", d.CurrentFrame().ID(), fa.ID())
	}
	if !d.CanRedo() {
		t.Fatal("expected redo to be available")
	}

	if err := d.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if d.CurrentFrame().ID() != fb.ID() {
		t.Errorf("after redo, current = %d, want %d", d.CurrentFrame().ID(), fb.ID())
	}
	if d.CanRedo() {
		t.Error("redo stack should be empty after redoing everything")
	}

	if _, ok := d.CurrentFrame().Snapshot(s1); !ok {
		t.Error("s1 should be present again after redo")
	}
	if _, ok := d.CurrentFrame().Snapshot(s2); !ok {
		t.Error("s2 should be present again after redo")
	}
}

func TestStaleBaseRejectsAccept(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())
	tf1, _ := d.CreateFrame(nil)
	tf1.Create("stock", object.Node(), formulaAttrs("1"))

	tf2, _ := d.CreateFrame(nil)
	tf2.Create("stock", object.Node(), formulaAttrs("2"))

	if _, err := d.Accept(tf1); err != nil {
		t.Fatalf("first accept should succeed: %v", err)
	}
	if _, err := d.Accept(tf2); err != ErrStaleBase {
		t.Errorf("expected ErrStaleBase, got %v", err)
	}
}

func TestFrameClosedAfterAccept(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())
	tf, _ := d.CreateFrame(nil)
	tf.Create("stock", object.Node(), formulaAttrs("1"))
	if _, err := d.Accept(tf); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := tf.Create("stock", object.Node(), formulaAttrs("2")); err != ErrFrameClosed {
		t.Errorf("expected ErrFrameClosed, got %v", err)
	}
}

func TestSetAttributeRejectsUnknownKey(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())
	tf, _ := d.CreateFrame(nil)
	id, _ := tf.Create("stock", object.Node(), formulaAttrs("1"))
	if err := tf.SetAttribute(id, "not_a_real_attribute", variant.Int(1)); err == nil {
		t.Error("expected ErrUnknownAttribute for an undeclared attribute key")
	}
}

func TestGraphViewOverAcceptedFrame(t *testing.T) {
	d := OpenDesign(stockFlowMetamodel())
	tf, _ := d.CreateFrame(nil)
	s1, _ := tf.Create("stock", object.Node(), formulaAttrs("1"))
	f, _ := tf.Create("flow", object.Node(), formulaAttrs("1"))
	tf.Create("drains", object.Edge(s1, f), nil)
	frame, err := d.Accept(tf)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	g := frame.Graph()
	out := g.Outgoing(s1)
	if len(out) != 1 {
		t.Fatalf("expected one outgoing edge from s1, got %d", len(out))
	}
	if out[0].Structure.Target != f {
		t.Errorf("expected edge to target f, got %d", out[0].Structure.Target)
	}
}
