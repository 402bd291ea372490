package model

import (
	"encoding/json"
	"fmt"
)

// CurrentSchemaVersion is written with every encoded model.
const CurrentSchemaVersion = 1

type modelDoc struct {
	SchemaVersion int            `json:"schema_version"`
	Segments      []*Segment     `json:"segments"`
	MuscleGroups  []*MuscleGroup `json:"muscle_groups,omitempty"`
	Muscles       []*Muscle      `json:"muscles,omitempty"`
	ViaPoints     []*ViaPoint    `json:"via_points,omitempty"`
}

// MarshalJSON encodes the registries as ordered arrays.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelDoc{
		SchemaVersion: CurrentSchemaVersion,
		Segments:      m.segments,
		MuscleGroups:  m.muscleGroups,
		Muscles:       m.muscles,
		ViaPoints:     m.viaPoints,
	})
}

// UnmarshalJSON rebuilds the model through the Add* methods, so a decoded
// model satisfies the same invariants as one built in code.
func (m *Model) UnmarshalJSON(data []byte) error {
	var doc modelDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("model schema version %d, expected %d", doc.SchemaVersion, CurrentSchemaVersion)
	}
	if hasNil(doc.Segments) || hasNil(doc.MuscleGroups) || hasNil(doc.Muscles) || hasNil(doc.ViaPoints) {
		return fmt.Errorf("model document contains null entries")
	}
	out := New()
	for _, s := range doc.Segments {
		if _, err := out.AddSegment(*s); err != nil {
			return err
		}
	}
	for _, g := range doc.MuscleGroups {
		if err := out.AddMuscleGroup(*g); err != nil {
			return err
		}
	}
	for _, mu := range doc.Muscles {
		if err := out.AddMuscle(*mu); err != nil {
			return err
		}
	}
	for _, v := range doc.ViaPoints {
		if err := out.AddViaPoint(*v); err != nil {
			return err
		}
	}
	*m = *out
	return nil
}

func hasNil[T any](items []*T) bool {
	for _, it := range items {
		if it == nil {
			return true
		}
	}
	return false
}
