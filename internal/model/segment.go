package model

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/geom"
)

// Segment is a rigid body of the kinematic tree.
type Segment struct {
	Name         string         `json:"name"`
	ParentName   string         `json:"parent"`
	Translations Translations   `json:"translations,omitempty"`
	Rotations    Rotations      `json:"rotations,omitempty"`
	QRanges      *RangeOfMotion `json:"q_ranges,omitempty"`
	QDotRanges   *RangeOfMotion `json:"qdot_ranges,omitempty"`

	// CoordinateSystem maps the segment frame into its parent's frame.
	CoordinateSystem mgl64.Mat4 `json:"coordinate_system"`

	Inertia  *InertiaParameters `json:"inertia,omitempty"`
	Mesh     *Mesh              `json:"mesh,omitempty"`
	MeshFile *MeshFile          `json:"mesh_file,omitempty"`

	Markers  []Marker  `json:"markers,omitempty"`
	Contacts []Contact `json:"contacts,omitempty"`
}

// NewSegment returns a segment attached to the root with an identity frame.
func NewSegment(name string) Segment {
	return Segment{Name: name, ParentName: Root, CoordinateSystem: mgl64.Ident4()}
}

// DOFCount is the number of translational plus rotational DOF.
func (s *Segment) DOFCount() int {
	return s.Translations.Count() + s.Rotations.Count()
}

// Marker returns the named marker.
func (s *Segment) Marker(name string) (*Marker, bool) {
	for i := range s.Markers {
		if s.Markers[i].Name == name {
			return &s.Markers[i], true
		}
	}
	return nil, false
}

// Contact returns the named contact.
func (s *Segment) Contact(name string) (*Contact, bool) {
	for i := range s.Contacts {
		if s.Contacts[i].Name == name {
			return &s.Contacts[i], true
		}
	}
	return nil, false
}

// AddMarker attaches m. Its parent must be this segment (an empty parent is
// filled in) and its name must be new on this segment.
func (s *Segment) AddMarker(m Marker) error {
	entity := MarkerEntity(m.Name)
	if err := checkName(entity, m.Name); err != nil {
		return err
	}
	if m.ParentName == "" {
		m.ParentName = s.Name
	}
	if m.ParentName != s.Name {
		return danglingf(entity, "parent %q does not match owning segment %q", m.ParentName, s.Name)
	}
	if _, ok := s.Marker(m.Name); ok {
		return duplicatef(entity, "already defined on segment %q", s.Name)
	}
	if !geom.IsFiniteVec3(m.Position) {
		return nonFinitef(entity, "position %v", m.Position)
	}
	s.Markers = append(s.Markers, m)
	return nil
}

// AddContact attaches c under the same rules as AddMarker.
func (s *Segment) AddContact(c Contact) error {
	entity := ContactEntity(c.Name)
	if err := checkName(entity, c.Name); err != nil {
		return err
	}
	if c.ParentName == "" {
		c.ParentName = s.Name
	}
	if c.ParentName != s.Name {
		return danglingf(entity, "parent %q does not match owning segment %q", c.ParentName, s.Name)
	}
	if _, ok := s.Contact(c.Name); ok {
		return duplicatef(entity, "already defined on segment %q", s.Name)
	}
	if err := c.Axis.validate(); err != nil {
		return invalidf(entity, "%v", err)
	}
	if !geom.IsFiniteVec3(c.Position) {
		return nonFinitef(entity, "position %v", c.Position)
	}
	s.Contacts = append(s.Contacts, c)
	return nil
}

// validate checks everything about s that does not depend on the tree.
func (s *Segment) validate() error {
	entity := SegmentEntity(s.Name)
	if err := checkName(entity, s.Name); err != nil {
		return err
	}
	if s.Name == Root || strings.EqualFold(s.Name, RootAlias) {
		return invalidf(entity, "%q is reserved for the root frame", s.Name)
	}
	if s.Name == s.ParentName {
		return NewError(ErrCyclicParentage, entity, "segment is its own parent")
	}
	if err := s.Translations.validate(); err != nil {
		return invalidf(entity, "%v", err)
	}
	if err := s.Rotations.validate(); err != nil {
		return invalidf(entity, "%v", err)
	}
	for _, r := range []*RangeOfMotion{s.QRanges, s.QDotRanges} {
		if r == nil {
			continue
		}
		if err := r.validate(s.DOFCount()); err != nil {
			return invalidf(entity, "%v", err)
		}
		if !finiteSlice(r.Min) || !finiteSlice(r.Max) {
			return nonFinitef(entity, "%s range bounds", r.Type)
		}
	}
	if !geom.IsFiniteMat4(s.CoordinateSystem) {
		return nonFinitef(entity, "coordinate system")
	}
	if in := s.Inertia; in != nil {
		if !finiteSlice([]float64{in.Mass}) || !geom.IsFiniteVec3(in.CenterOfMass) || !geom.IsFiniteMat3(in.Inertia) {
			return nonFinitef(entity, "inertia parameters")
		}
		if in.Mass < 0 {
			return invalidf(entity, "negative mass %g", in.Mass)
		}
	}
	if s.Mesh != nil {
		for i, p := range s.Mesh.Points {
			if !geom.IsFiniteVec3(p) {
				return nonFinitef(entity, "mesh point %d", i)
			}
		}
	}
	if mf := s.MeshFile; mf != nil {
		if mf.Path == "" {
			return invalidf(entity, "mesh file path is required")
		}
		for _, v := range []mgl64.Vec3{mf.Color, mf.Scaling, mf.Rotation, mf.Translation} {
			if !geom.IsFiniteVec3(v) {
				return nonFinitef(entity, "mesh file parameters")
			}
		}
	}
	seen := map[string]bool{}
	for _, m := range s.Markers {
		if err := checkName(MarkerEntity(m.Name), m.Name); err != nil {
			return err
		}
		if m.ParentName != s.Name {
			return danglingf(MarkerEntity(m.Name), "parent %q does not match owning segment %q", m.ParentName, s.Name)
		}
		if seen[m.Name] {
			return duplicatef(MarkerEntity(m.Name), "already defined on segment %q", s.Name)
		}
		seen[m.Name] = true
	}
	seen = map[string]bool{}
	for _, c := range s.Contacts {
		if err := checkName(ContactEntity(c.Name), c.Name); err != nil {
			return err
		}
		if c.ParentName != s.Name {
			return danglingf(ContactEntity(c.Name), "parent %q does not match owning segment %q", c.ParentName, s.Name)
		}
		if seen[c.Name] {
			return duplicatef(ContactEntity(c.Name), "already defined on segment %q", s.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

func finiteSlice(vs []float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
