package model

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/tiendc/go-deepcopy"

	"github.com/rcliao/biobuddy/internal/geom"
)

// Model is a fully numeric biomechanical model. Segments are kept in
// registration order, which is always parent-before-child: AddSegment only
// accepts a segment whose parent is the root or already registered.
//
// A Model is not safe for concurrent mutation. Failed Add* calls leave earlier
// registrations in place; callers discard the model on error.
type Model struct {
	segments      []*Segment
	segmentIndex  map[string]int
	muscleGroups  []*MuscleGroup
	groupIndex    map[string]int
	muscles       []*Muscle
	muscleIndex   map[string]int
	viaPoints     []*ViaPoint
	viaPointIndex map[string]int
}

// New returns an empty model.
func New() *Model {
	return &Model{
		segmentIndex:  map[string]int{},
		groupIndex:    map[string]int{},
		muscleIndex:   map[string]int{},
		viaPointIndex: map[string]int{},
	}
}

// AddSegment registers a copy of s and returns the registered segment, which
// the model owns. An empty parent means the root; a zero coordinate system
// means identity.
func (m *Model) AddSegment(s Segment) (*Segment, error) {
	var owned Segment
	if err := deepcopy.Copy(&owned, s); err != nil {
		return nil, Wrap(ErrInvalidDefinition, SegmentEntity(s.Name), err)
	}
	if owned.ParentName == "" {
		owned.ParentName = Root
	}
	if owned.CoordinateSystem == (mgl64.Mat4{}) {
		owned.CoordinateSystem = mgl64.Ident4()
	}
	if err := owned.validate(); err != nil {
		return nil, err
	}
	entity := SegmentEntity(owned.Name)
	if _, ok := m.segmentIndex[owned.Name]; ok {
		return nil, duplicatef(entity, "already registered")
	}
	if !IsRoot(owned.ParentName) {
		if _, ok := m.segmentIndex[owned.ParentName]; !ok {
			return nil, danglingf(entity, "parent %q is not registered", owned.ParentName)
		}
	}
	m.segmentIndex[owned.Name] = len(m.segments)
	m.segments = append(m.segments, &owned)
	return &owned, nil
}

// AddMuscleGroup registers g; both parent segments must exist.
func (m *Model) AddMuscleGroup(g MuscleGroup) error {
	entity := MuscleGroupEntity(g.Name)
	if err := checkName(entity, g.Name); err != nil {
		return err
	}
	if _, ok := m.groupIndex[g.Name]; ok {
		return duplicatef(entity, "already registered")
	}
	for _, ref := range []string{g.OriginParentName, g.InsertionParentName} {
		if _, ok := m.segmentIndex[ref]; !ok {
			return danglingf(entity, "segment %q is not registered", ref)
		}
	}
	m.groupIndex[g.Name] = len(m.muscleGroups)
	m.muscleGroups = append(m.muscleGroups, &g)
	return nil
}

// AddMuscle registers mu; its muscle group must exist.
func (m *Model) AddMuscle(mu Muscle) error {
	entity := MuscleEntity(mu.Name)
	if err := checkName(entity, mu.Name); err != nil {
		return err
	}
	if _, ok := m.muscleIndex[mu.Name]; ok {
		return duplicatef(entity, "already registered")
	}
	if _, ok := m.groupIndex[mu.MuscleGroup]; !ok {
		return danglingf(entity, "muscle group %q is not registered", mu.MuscleGroup)
	}
	if _, err := ParseMuscleType(string(mu.Type)); err != nil {
		return invalidf(entity, "%v", err)
	}
	if mu.StateType != "" {
		if _, err := ParseMuscleStateType(string(mu.StateType)); err != nil {
			return invalidf(entity, "%v", err)
		}
	}
	scalars := []float64{mu.OptimalLength, mu.MaximalForce, mu.TendonSlackLength, mu.PennationAngle, mu.MaximalExcitation}
	if !finiteSlice(scalars) || !geom.IsFiniteVec3(mu.OriginPosition) || !geom.IsFiniteVec3(mu.InsertionPosition) {
		return nonFinitef(entity, "muscle parameters")
	}
	m.muscleIndex[mu.Name] = len(m.muscles)
	m.muscles = append(m.muscles, &mu)
	return nil
}

// AddViaPoint registers v; its parent segment and muscle must exist and its
// muscle group, when given, must be the muscle's.
func (m *Model) AddViaPoint(v ViaPoint) error {
	entity := ViaPointEntity(v.Name)
	if err := checkName(entity, v.Name); err != nil {
		return err
	}
	if _, ok := m.viaPointIndex[v.Name]; ok {
		return duplicatef(entity, "already registered")
	}
	if _, ok := m.segmentIndex[v.ParentName]; !ok {
		return danglingf(entity, "parent segment %q is not registered", v.ParentName)
	}
	mu, ok := m.Muscle(v.MuscleName)
	if !ok {
		return danglingf(entity, "muscle %q is not registered", v.MuscleName)
	}
	if v.MuscleGroup == "" {
		v.MuscleGroup = mu.MuscleGroup
	}
	if v.MuscleGroup != mu.MuscleGroup {
		return danglingf(entity, "muscle group %q does not match muscle %q group %q", v.MuscleGroup, mu.Name, mu.MuscleGroup)
	}
	if !geom.IsFiniteVec3(v.Position) {
		return nonFinitef(entity, "position %v", v.Position)
	}
	m.viaPointIndex[v.Name] = len(m.viaPoints)
	m.viaPoints = append(m.viaPoints, &v)
	return nil
}

// Segment returns the registered segment; mutations go to the model's copy.
func (m *Model) Segment(name string) (*Segment, bool) {
	i, ok := m.segmentIndex[name]
	if !ok {
		return nil, false
	}
	return m.segments[i], true
}

// Segments returns the segments in registration order.
func (m *Model) Segments() []*Segment {
	out := make([]*Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// SegmentNames returns segment names in registration order.
func (m *Model) SegmentNames() []string {
	out := make([]string, 0, len(m.segments))
	for _, s := range m.segments {
		out = append(out, s.Name)
	}
	return out
}

// MuscleGroup returns the named muscle group.
func (m *Model) MuscleGroup(name string) (*MuscleGroup, bool) {
	i, ok := m.groupIndex[name]
	if !ok {
		return nil, false
	}
	return m.muscleGroups[i], true
}

// MuscleGroups returns the muscle groups in registration order.
func (m *Model) MuscleGroups() []*MuscleGroup {
	out := make([]*MuscleGroup, len(m.muscleGroups))
	copy(out, m.muscleGroups)
	return out
}

// Muscle returns the named muscle.
func (m *Model) Muscle(name string) (*Muscle, bool) {
	i, ok := m.muscleIndex[name]
	if !ok {
		return nil, false
	}
	return m.muscles[i], true
}

// Muscles returns the muscles in registration order.
func (m *Model) Muscles() []*Muscle {
	out := make([]*Muscle, len(m.muscles))
	copy(out, m.muscles)
	return out
}

// MusclesOf returns the muscles of a group in registration order.
func (m *Model) MusclesOf(group string) []*Muscle {
	var out []*Muscle
	for _, mu := range m.muscles {
		if mu.MuscleGroup == group {
			out = append(out, mu)
		}
	}
	return out
}

// ViaPoint returns the named via point.
func (m *Model) ViaPoint(name string) (*ViaPoint, bool) {
	i, ok := m.viaPointIndex[name]
	if !ok {
		return nil, false
	}
	return m.viaPoints[i], true
}

// ViaPoints returns the via points in registration order.
func (m *Model) ViaPoints() []*ViaPoint {
	out := make([]*ViaPoint, len(m.viaPoints))
	copy(out, m.viaPoints)
	return out
}

// ViaPointsOf returns the via points of a muscle in registration order.
func (m *Model) ViaPointsOf(muscle string) []*ViaPoint {
	var out []*ViaPoint
	for _, v := range m.viaPoints {
		if v.MuscleName == muscle {
			out = append(out, v)
		}
	}
	return out
}

// DOFCount is the total number of generalized coordinates.
func (m *Model) DOFCount() int {
	n := 0
	for _, s := range m.segments {
		n += s.DOFCount()
	}
	return n
}

// Real returns m itself; a Model holds no unresolved values.
func (m *Model) Real() (*Model, error) { return m, nil }

// Clone returns an independent deep copy of m.
func (m *Model) Clone() (*Model, error) {
	out := New()
	for _, s := range m.segments {
		if _, err := out.AddSegment(*s); err != nil {
			return nil, err
		}
	}
	for _, g := range m.muscleGroups {
		if err := out.AddMuscleGroup(*g); err != nil {
			return nil, err
		}
	}
	for _, mu := range m.muscles {
		if err := out.AddMuscle(*mu); err != nil {
			return nil, err
		}
	}
	for _, v := range m.viaPoints {
		if err := out.AddViaPoint(*v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
