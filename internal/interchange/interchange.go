// Package interchange implements the version-neutral raw interchange
// representation used by external serializers to import/export a Design:
// RawDesign, RawSnapshot, RawFrame, plus an extractor with a pruning mode.
//
// Grounded on lang/types/value.go's dual json/yaml-tagged wire structs,
// adapted from mgmt's AST value marshaling to the flat design/snapshot/frame
// shape spec §4.I describes.
package interchange

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/purpleidea/poietic-core/internal/object"
	"github.com/purpleidea/poietic-core/internal/store"
	"github.com/purpleidea/poietic-core/internal/variant"
	"gopkg.in/yaml.v2"
)

// RawSnapshot is the flat, version-neutral wire shape of a single object
// snapshot.
type RawSnapshot struct {
	TypeName   string                 `json:"typeName" yaml:"typeName"`
	SnapshotID uint64                 `json:"snapshotID" yaml:"snapshotID"`
	ID         uint64                 `json:"id" yaml:"id"`
	Structure  RawStructure           `json:"structure" yaml:"structure"`
	Parent     *uint64                `json:"parent,omitempty" yaml:"parent,omitempty"`
	Attributes map[string]RawVariant  `json:"attributes" yaml:"attributes"`
}

// RawStructure is the wire shape of object.Structure: kind tag plus whichever
// fields that kind uses.
type RawStructure struct {
	Kind   string   `json:"kind" yaml:"kind"`
	Origin *uint64  `json:"origin,omitempty" yaml:"origin,omitempty"`
	Target *uint64  `json:"target,omitempty" yaml:"target,omitempty"`
	Owner  *uint64  `json:"owner,omitempty" yaml:"owner,omitempty"`
	Items  []uint64 `json:"items,omitempty" yaml:"items,omitempty"`
}

// RawVariant is the wire shape of a variant.Variant: a type tag plus a raw
// Go value (or a nested array of RawVariant for TypeArray).
type RawVariant struct {
	Type  string      `json:"type" yaml:"type"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// RawFrame is the wire shape of a single frame: its ID plus the ordered list
// of snapshot IDs it installs.
type RawFrame struct {
	ID        uint64   `json:"id" yaml:"id"`
	Snapshots []uint64 `json:"snapshots" yaml:"snapshots"`
}

// RawDesign is the full version-neutral interchange document.
type RawDesign struct {
	MetamodelName    string        `json:"metamodelName" yaml:"metamodelName"`
	MetamodelVersion string        `json:"metamodelVersion" yaml:"metamodelVersion"`
	Snapshots        []RawSnapshot `json:"snapshots" yaml:"snapshots"`
	Frames           []RawFrame    `json:"frames" yaml:"frames"`
	UserReferences   map[string]uint64   `json:"userReferences" yaml:"userReferences"`
	SystemReferences map[string]uint64   `json:"systemReferences" yaml:"systemReferences"`
	SystemLists      map[string][]uint64 `json:"systemLists" yaml:"systemLists"`
}

func toRawVariant(v variant.Variant) RawVariant {
	if v.Type() == variant.TypeArray {
		items, _ := v.Items()
		elems := make([]RawVariant, len(items))
		for i, it := range items {
			elems[i] = toRawVariant(it)
		}
		return RawVariant{Type: v.Type().String(), Value: elems}
	}
	return RawVariant{Type: v.Type().String(), Value: v.Raw()}
}

func toRawStructure(s object.Structure) RawStructure {
	out := RawStructure{Kind: s.Kind.String()}
	switch s.Kind {
	case object.KindEdge:
		o, t := uint64(s.Origin), uint64(s.Target)
		out.Origin = &o
		out.Target = &t
	case object.KindOrderedSet:
		o := uint64(s.Owner)
		out.Owner = &o
		out.Items = make([]uint64, len(s.Items))
		for i, it := range s.Items {
			out.Items[i] = uint64(it)
		}
	}
	return out
}

func toRawSnapshot(s object.Snapshot) RawSnapshot {
	raw := RawSnapshot{
		TypeName:   s.TypeName,
		SnapshotID: uint64(s.SnapshotID),
		ID:         uint64(s.ObjectID),
		Structure:  toRawStructure(s.Structure),
		Attributes: make(map[string]RawVariant, len(s.Attributes)),
	}
	if s.Parent != nil {
		p := uint64(*s.Parent)
		raw.Parent = &p
	}
	for k, v := range s.Attributes {
		raw.Attributes[k] = toRawVariant(v)
	}
	return raw
}

// Extract produces a RawDesign from a Design's current frame, with no
// pruning: every object reachable from the current frame is included
// verbatim.
func Extract(d *store.Design) RawDesign {
	return ExtractPruned(d, nil)
}

// ExtractPruned produces a RawDesign restricted to the given set of
// ObjectIDs (nil or empty means "no restriction — export everything"). In
// pruning mode: nodes and unstructured objects are kept outright if
// selected; edges are kept only if both endpoints are also selected;
// orderedSets are kept only if their owner is selected, with unknown item
// references silently dropped; a parent reference pointing outside the
// selected set is cleared to none, per spec §4.I.
func ExtractPruned(d *store.Design, selected map[object.ObjectID]bool) RawDesign {
	frame := d.CurrentFrame()
	ids := frame.ObjectIDs()

	keep := func(id object.ObjectID) bool {
		return selected == nil || selected[id]
	}

	raw := RawDesign{
		MetamodelName:    d.Metamodel().Name,
		MetamodelVersion: d.Metamodel().Version,
		UserReferences:   make(map[string]uint64),
		SystemReferences: make(map[string]uint64),
		SystemLists:      make(map[string][]uint64),
	}

	var snapshotIDs []uint64
	for _, id := range ids {
		snap, ok := frame.Snapshot(id)
		if !ok || !keep(id) {
			continue
		}
		switch snap.Structure.Kind {
		case object.KindEdge:
			if selected != nil && (!keep(snap.Structure.Origin) || !keep(snap.Structure.Target)) {
				continue
			}
		case object.KindOrderedSet:
			if selected != nil && !keep(snap.Structure.Owner) {
				continue
			}
			pruned := snap.Structure.Items[:0:0]
			for _, it := range snap.Structure.Items {
				if keep(it) {
					pruned = append(pruned, it)
				}
			}
			snap.Structure.Items = pruned
		}
		if snap.Parent != nil && selected != nil && !keep(*snap.Parent) {
			snap.Parent = nil
		}
		raw.Snapshots = append(raw.Snapshots, toRawSnapshot(snap))
		snapshotIDs = append(snapshotIDs, uint64(snap.SnapshotID))
	}
	sort.Slice(raw.Snapshots, func(i, j int) bool { return raw.Snapshots[i].ID < raw.Snapshots[j].ID })
	sort.Slice(snapshotIDs, func(i, j int) bool { return snapshotIDs[i] < snapshotIDs[j] })

	raw.Frames = []RawFrame{{ID: uint64(frame.ID()), Snapshots: snapshotIDs}}
	raw.SystemReferences["current_frame"] = uint64(frame.ID())

	var undo, redo []uint64
	for _, id := range d.UndoStack() {
		undo = append(undo, uint64(id))
	}
	for _, id := range d.RedoStack() {
		redo = append(redo, uint64(id))
	}
	raw.SystemLists["undo"] = undo
	raw.SystemLists["redo"] = redo

	return raw
}

// MarshalJSON produces the canonical on-disk JSON form of a RawDesign.
func (raw RawDesign) MarshalJSON() ([]byte, error) {
	type alias RawDesign // avoid infinite recursion through the method set
	b, err := json.Marshal(alias(raw))
	return b, errors.Wrap(err, "marshal raw design as json")
}

// ToYAML produces the YAML sibling of MarshalJSON, for tooling that prefers
// a human-editable interchange file over JSON. Named ToYAML rather than
// MarshalYAML since its signature ([]byte, error) doesn't match
// yaml.Marshaler's (interface{}, error) — it's a direct encoder, not a hook
// yaml.Marshal will dispatch to.
func (raw RawDesign) ToYAML() ([]byte, error) {
	b, err := yaml.Marshal(raw)
	return b, errors.Wrap(err, "marshal raw design as yaml")
}

// UnmarshalRawDesignYAML parses a YAML-encoded RawDesign previously produced
// by ToYAML.
func UnmarshalRawDesignYAML(data []byte) (RawDesign, error) {
	var raw RawDesign
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RawDesign{}, errors.Wrap(err, "unmarshal raw design from yaml")
	}
	return raw, nil
}

// UnmarshalRawDesignJSON parses a JSON-encoded RawDesign previously produced
// by MarshalJSON.
func UnmarshalRawDesignJSON(data []byte) (RawDesign, error) {
	var raw RawDesign
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawDesign{}, errors.Wrap(err, "unmarshal raw design from json")
	}
	return raw, nil
}
