package metamodel

import (
	"testing"

	"github.com/purpleidea/poietic-core/internal/predicate"
	"github.com/purpleidea/poietic-core/internal/variant"
)

func TestAddTraitOverridesSameName(t *testing.T) {
	m := New("m", "1.0.0")
	m.AddTrait(Trait{Name: "labeled", Attributes: []Attribute{{Name: "label", Type: variant.TypeString}}})
	m.AddTrait(Trait{Name: "labeled", Attributes: []Attribute{{Name: "label", Type: variant.TypeInt}}})

	tr, err := m.Trait("labeled")
	if err != nil {
		t.Fatalf("Trait: %v", err)
	}
	a, _ := tr.Attribute("label")
	if a.Type != variant.TypeInt {
		t.Errorf("expected the later AddTrait call to win, got type %s", a.Type)
	}
	if len(m.traitOrder) != 1 {
		t.Errorf("re-adding a trait name should not grow declaration order, got %v", m.traitOrder)
	}
}

func TestMergeOtherOverridesBase(t *testing.T) {
	base := New("base", "1.0.0")
	base.AddObjectType(ObjectType{Name: "stock", StructuralType: StructNode})
	base.AddTrait(Trait{Name: "formula", Attributes: []Attribute{{Name: "formula", Type: variant.TypeString}}})

	overlay := New("overlay", "2.0.0")
	overlay.AddObjectType(ObjectType{Name: "stock", StructuralType: StructNode, SystemOwned: true})
	overlay.AddObjectType(ObjectType{Name: "flow", StructuralType: StructNode})

	merged := base.Merge(overlay)

	if merged.Name != "overlay" || merged.Version != "2.0.0" {
		t.Errorf("expected merged metamodel to take overlay's name/version, got %q %q", merged.Name, merged.Version)
	}
	stock, err := merged.ObjectType("stock")
	if err != nil {
		t.Fatalf("ObjectType(stock): %v", err)
	}
	if !stock.SystemOwned {
		t.Error("expected overlay's stock definition (SystemOwned) to win over base's")
	}
	if _, err := merged.ObjectType("flow"); err != nil {
		t.Errorf("expected flow from overlay to be present: %v", err)
	}
	if _, err := merged.Trait("formula"); err != nil {
		t.Errorf("expected formula trait from base to survive the merge: %v", err)
	}
}

func TestMergePreservesDeclarationOrderBaseThenOverlay(t *testing.T) {
	base := New("base", "")
	base.AddConstraint(Constraint{Name: "c1", Match: predicate.Any{}, Requirement: predicate.AcceptAll{}})
	overlay := New("overlay", "")
	overlay.AddConstraint(Constraint{Name: "c2", Match: predicate.Any{}, Requirement: predicate.AcceptAll{}})

	merged := base.Merge(overlay)
	names := make([]string, 0, 2)
	for _, c := range merged.Constraints() {
		names = append(names, c.Name)
	}
	if len(names) != 2 || names[0] != "c1" || names[1] != "c2" {
		t.Errorf("expected base constraints before overlay constraints, got %v", names)
	}
}

func TestValidateMergeabilityDetectsStructuralTypeConflict(t *testing.T) {
	a := New("a", "")
	a.AddObjectType(ObjectType{Name: "thing", StructuralType: StructNode})
	b := New("b", "")
	b.AddObjectType(ObjectType{Name: "thing", StructuralType: StructEdge})

	conflicts := a.ValidateMergeability(b)
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %v", conflicts)
	}
	if conflicts[0].Kind != "objectType" || conflicts[0].Name != "thing" {
		t.Errorf("unexpected conflict: %+v", conflicts[0])
	}
}

func TestValidateMergeabilityDetectsTraitAttributeConflict(t *testing.T) {
	a := New("a", "")
	a.AddTrait(Trait{Name: "labeled", Attributes: []Attribute{{Name: "label", Type: variant.TypeString}}})
	b := New("b", "")
	b.AddTrait(Trait{Name: "labeled", Attributes: []Attribute{{Name: "label", Type: variant.TypeInt}}})

	conflicts := a.ValidateMergeability(b)
	if len(conflicts) != 1 || conflicts[0].Kind != "trait" {
		t.Fatalf("expected one trait conflict, got %v", conflicts)
	}
}

func TestValidateMergeabilityIgnoresNonOverlappingNames(t *testing.T) {
	a := New("a", "")
	a.AddObjectType(ObjectType{Name: "stock", StructuralType: StructNode})
	b := New("b", "")
	b.AddObjectType(ObjectType{Name: "flow", StructuralType: StructNode})

	if conflicts := a.ValidateMergeability(b); len(conflicts) != 0 {
		t.Errorf("expected no conflicts between disjoint metamodels, got %v", conflicts)
	}
}

func TestValidateRejectsNonSnakeCaseNames(t *testing.T) {
	m := New("m", "")
	m.AddObjectType(ObjectType{Name: "StockFlow", StructuralType: StructNode})
	m.AddTrait(Trait{Name: "camelCase"})
	m.AddConstraint(Constraint{Name: "BadName", Match: predicate.Any{}, Requirement: predicate.AcceptAll{}})

	err := m.Validate()
	if err == nil {
		t.Fatal("expected Validate to reject non-snake_case names")
	}
}

func TestValidateAcceptsSnakeCaseNames(t *testing.T) {
	m := New("m", "")
	m.AddObjectType(ObjectType{Name: "stock_flow", StructuralType: StructNode})
	m.AddTrait(Trait{Name: "formula"})
	m.AddConstraint(Constraint{Name: "flow_drain_is_stock", Match: predicate.Any{}, Requirement: predicate.AcceptAll{}})

	if err := m.Validate(); err != nil {
		t.Errorf("expected snake_case names to validate cleanly, got %v", err)
	}
}

func TestAttributesFlattensAcrossTraitsDeduplicated(t *testing.T) {
	m := New("m", "")
	m.AddTrait(Trait{Name: "a", Attributes: []Attribute{{Name: "x", Type: variant.TypeInt}}})
	m.AddTrait(Trait{Name: "b", Attributes: []Attribute{{Name: "x", Type: variant.TypeInt}, {Name: "y", Type: variant.TypeString}}})
	m.AddObjectType(ObjectType{Name: "thing", StructuralType: StructNode, Traits: []string{"a", "b"}})

	attrs, err := m.Attributes("thing")
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}
	if len(attrs) != 2 {
		t.Fatalf("expected x and y deduplicated, got %v", attrs)
	}
}
