package generic

import (
	"github.com/rcliao/biobuddy/internal/model"
)

// Segment is a template segment.
type Segment struct {
	Name         string
	ParentName   string
	Translations model.Translations
	Rotations    model.Rotations
	QRanges      *model.RangeOfMotion
	QDotRanges   *model.RangeOfMotion

	CoordinateSystem CoordinateSystem

	Inertia  *InertiaParameters
	Mesh     *Mesh
	MeshFile *MeshFile

	markers  []Marker
	contacts []Contact
}

// Markers returns the attached markers in order.
func (s *Segment) Markers() []Marker { return append([]Marker(nil), s.markers...) }

// Contacts returns the attached contacts in order.
func (s *Segment) Contacts() []Contact { return append([]Contact(nil), s.contacts...) }

// AddMarker attaches m. Its parent must be this segment (an empty parent is
// filled in) and its name must be new on this segment.
func (s *Segment) AddMarker(m Marker) error {
	entity := model.MarkerEntity(m.Name)
	if err := s.checkAttachment(entity, m.Name, &m.ParentName); err != nil {
		return err
	}
	for _, o := range s.markers {
		if o.Name == m.Name {
			return model.NewError(model.ErrDuplicateName, entity, "already defined on segment %q", s.Name)
		}
	}
	s.markers = append(s.markers, m)
	return nil
}

// AddContact attaches c under the same rules as AddMarker.
func (s *Segment) AddContact(c Contact) error {
	entity := model.ContactEntity(c.Name)
	if err := s.checkAttachment(entity, c.Name, &c.ParentName); err != nil {
		return err
	}
	for _, o := range s.contacts {
		if o.Name == c.Name {
			return model.NewError(model.ErrDuplicateName, entity, "already defined on segment %q", s.Name)
		}
	}
	s.contacts = append(s.contacts, c)
	return nil
}

func (s *Segment) checkAttachment(entity, name string, parent *string) error {
	if name == "" {
		return model.NewError(model.ErrInvalidDefinition, entity, "name is required")
	}
	if *parent == "" {
		*parent = s.Name
	}
	if *parent != s.Name {
		return model.NewError(model.ErrDanglingReference, entity, "parent %q does not match owning segment %q", *parent, s.Name)
	}
	return nil
}

// unresolved names the first computed field of s, or returns "".
func (s *Segment) unresolved() (entity, field string) {
	segEntity := model.SegmentEntity(s.Name)
	if f := s.CoordinateSystem.unresolved(); f != "" {
		return segEntity, "coordinate system " + f
	}
	if in := s.Inertia; in != nil {
		switch {
		case !in.Mass.IsFixed():
			return segEntity, "mass"
		case !in.CenterOfMass.IsFixed():
			return segEntity, "center of mass"
		case !in.Inertia.IsFixed():
			return segEntity, "inertia"
		}
	}
	if s.Mesh != nil {
		for _, p := range s.Mesh.Points {
			if !p.IsFixed() {
				return segEntity, "mesh point"
			}
		}
	}
	if mf := s.MeshFile; mf != nil {
		if !mf.Scaling.IsFixed() || !mf.Rotation.IsFixed() || !mf.Translation.IsFixed() {
			return segEntity, "mesh file placement"
		}
	}
	for _, m := range s.markers {
		if !m.Position.IsFixed() {
			return model.MarkerEntity(m.Name), "position (" + m.Position.Name() + ")"
		}
	}
	for _, c := range s.contacts {
		if !c.Position.IsFixed() {
			return model.ContactEntity(c.Name), "position (" + c.Position.Name() + ")"
		}
	}
	return "", ""
}
