package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/rcliao/biobuddy/internal/geom"
)

// Ancestors returns the parent chain of name, nearest first, ending at the
// last segment below the root. The walk is bounded by the number of
// registered segments; revisiting a segment yields ErrCyclicParentage.
func (m *Model) Ancestors(name string) ([]string, error) {
	s, ok := m.Segment(name)
	if !ok {
		return nil, danglingf(SegmentEntity(name), "not registered")
	}
	visited := map[string]bool{s.Name: true}
	var chain []string
	for cur := s; !IsRoot(cur.ParentName); {
		parent := cur.ParentName
		if visited[parent] || len(chain) >= len(m.segments) {
			return nil, NewError(ErrCyclicParentage, SegmentEntity(name), "ancestor chain %s revisits %q",
				strings.Join(append([]string{name}, chain...), " -> "), parent)
		}
		visited[parent] = true
		next, ok := m.Segment(parent)
		if !ok {
			return nil, danglingf(SegmentEntity(cur.Name), "parent %q is not registered", parent)
		}
		chain = append(chain, parent)
		cur = next
	}
	return chain, nil
}

// Depth is the number of segments above name; top-level segments have depth 0.
func (m *Model) Depth(name string) (int, error) {
	chain, err := m.Ancestors(name)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// GlobalTransform composes local coordinate systems from the root down to name.
func (m *Model) GlobalTransform(name string) (mgl64.Mat4, error) {
	if IsRoot(name) {
		return mgl64.Ident4(), nil
	}
	chain, err := m.Ancestors(name)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	t := mgl64.Ident4()
	for i := len(chain) - 1; i >= 0; i-- {
		s, _ := m.Segment(chain[i])
		t = geom.Compose(t, s.CoordinateSystem)
	}
	s, _ := m.Segment(name)
	return geom.Compose(t, s.CoordinateSystem), nil
}

// MarkerGlobalPosition returns a marker's position in the global frame.
func (m *Model) MarkerGlobalPosition(segment, marker string) (mgl64.Vec3, error) {
	s, ok := m.Segment(segment)
	if !ok {
		return mgl64.Vec3{}, danglingf(SegmentEntity(segment), "not registered")
	}
	mk, ok := s.Marker(marker)
	if !ok {
		return mgl64.Vec3{}, danglingf(MarkerEntity(marker), "not defined on segment %q", segment)
	}
	t, err := m.GlobalTransform(segment)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return geom.Apply(t, mk.Position), nil
}

// FindMarker returns the segment owning the named marker, searching in
// registration order.
func (m *Model) FindMarker(name string) (*Segment, *Marker, bool) {
	for _, s := range m.segments {
		if mk, ok := s.Marker(name); ok {
			return s, mk, true
		}
	}
	return nil, nil, false
}

// Validate re-checks every invariant of the model from scratch: per-segment
// definitions, parent references, acyclicity of the segment graph,
// parent-before-child registration order, and muscle/via point references.
// Registered entities can be edited in place, so this is the check to run
// before trusting a model assembled elsewhere.
func (m *Model) Validate() error {
	g := simple.NewDirectedGraph()
	ids := make(map[string]int64, len(m.segments))
	for i, s := range m.segments {
		if err := s.validate(); err != nil {
			return err
		}
		if _, dup := ids[s.Name]; dup {
			return duplicatef(SegmentEntity(s.Name), "registered twice")
		}
		ids[s.Name] = int64(i)
		g.AddNode(simple.Node(i))
	}
	for _, s := range m.segments {
		if IsRoot(s.ParentName) {
			continue
		}
		pid, ok := ids[s.ParentName]
		if !ok {
			return danglingf(SegmentEntity(s.Name), "parent %q is not registered", s.ParentName)
		}
		g.SetEdge(g.NewEdge(simple.Node(pid), simple.Node(ids[s.Name])))
	}
	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) && len(cycles) > 0 {
			names := make([]string, 0, len(cycles[0]))
			for _, n := range cycles[0] {
				names = append(names, m.segments[n.ID()].Name)
			}
			return NewError(ErrCyclicParentage, "", "segments %s", strings.Join(names, ", "))
		}
		return Wrap(ErrCyclicParentage, "", err)
	}
	for i, s := range m.segments {
		if !IsRoot(s.ParentName) && ids[s.ParentName] > int64(i) {
			return danglingf(SegmentEntity(s.Name), "parent %q is registered after its child", s.ParentName)
		}
	}

	for _, grp := range m.muscleGroups {
		if err := checkName(MuscleGroupEntity(grp.Name), grp.Name); err != nil {
			return err
		}
		for _, ref := range []string{grp.OriginParentName, grp.InsertionParentName} {
			if _, ok := ids[ref]; !ok {
				return danglingf(MuscleGroupEntity(grp.Name), "segment %q is not registered", ref)
			}
		}
	}
	for _, mu := range m.muscles {
		if err := checkName(MuscleEntity(mu.Name), mu.Name); err != nil {
			return err
		}
		if _, ok := m.groupIndex[mu.MuscleGroup]; !ok {
			return danglingf(MuscleEntity(mu.Name), "muscle group %q is not registered", mu.MuscleGroup)
		}
	}
	for _, v := range m.viaPoints {
		if err := checkName(ViaPointEntity(v.Name), v.Name); err != nil {
			return err
		}
		if _, ok := ids[v.ParentName]; !ok {
			return danglingf(ViaPointEntity(v.Name), "parent segment %q is not registered", v.ParentName)
		}
		mu, ok := m.Muscle(v.MuscleName)
		if !ok {
			return danglingf(ViaPointEntity(v.Name), "muscle %q is not registered", v.MuscleName)
		}
		if v.MuscleGroup != mu.MuscleGroup {
			return danglingf(ViaPointEntity(v.Name), "muscle group %q does not match muscle %q", v.MuscleGroup, mu.Name)
		}
	}
	return nil
}

// String summarizes the model for logs.
func (m *Model) String() string {
	return fmt.Sprintf("model(%d segments, %d DOF, %d muscle groups, %d muscles, %d via points)",
		len(m.segments), m.DOFCount(), len(m.muscleGroups), len(m.muscles), len(m.viaPoints))
}
