package generic

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/geom"
	"github.com/rcliao/biobuddy/internal/model"
)

// Axis is a named segment axis running between two global points.
type Axis struct {
	Name  geom.Axis
	Start Value[mgl64.Vec3]
	End   Value[mgl64.Vec3]
}

// SegmentCoordinateSystem builds a segment frame from points, typically the
// mean positions of data markers.
type SegmentCoordinateSystem struct {
	Origin     Value[mgl64.Vec3]
	First      Axis
	Second     Axis
	AxisToKeep geom.Axis
}

// Eval returns the global frame described by s.
func (s SegmentCoordinateSystem) Eval(m *model.Model, d data.Source) (mgl64.Mat4, error) {
	origin, err := s.Origin.Eval(m, d)
	if err != nil {
		return mgl64.Mat4{}, fmt.Errorf("origin: %w", err)
	}
	first, err := s.First.eval(m, d)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	second, err := s.Second.eval(m, d)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return geom.FromAxes(origin, first, second, s.AxisToKeep)
}

func (a Axis) eval(m *model.Model, d data.Source) (geom.AxisVector, error) {
	start, err := a.Start.Eval(m, d)
	if err != nil {
		return geom.AxisVector{}, fmt.Errorf("%s axis start: %w", a.Name, err)
	}
	end, err := a.End.Eval(m, d)
	if err != nil {
		return geom.AxisVector{}, fmt.Errorf("%s axis end: %w", a.Name, err)
	}
	return geom.AxisVector{Name: a.Name, Start: start, End: end}, nil
}

func (s SegmentCoordinateSystem) unresolved() string {
	for _, v := range []struct {
		name string
		val  Value[mgl64.Vec3]
	}{
		{"origin", s.Origin},
		{s.First.Name.String() + " axis start", s.First.Start},
		{s.First.Name.String() + " axis end", s.First.End},
		{s.Second.Name.String() + " axis start", s.Second.Start},
		{s.Second.Name.String() + " axis end", s.Second.End},
	} {
		if !v.val.IsFixed() {
			return v.name + " (" + v.val.Name() + ")"
		}
	}
	return ""
}

// CoordinateSystem places a segment. The zero value is the identity relative
// to the parent.
type CoordinateSystem struct {
	global bool
	value  Value[mgl64.Mat4]
	axes   *SegmentCoordinateSystem
}

// Local is a transform already expressed in the parent frame.
func Local(t mgl64.Mat4) CoordinateSystem {
	return CoordinateSystem{value: Fixed(t)}
}

// LocalFrom computes a parent-relative transform.
func LocalFrom(v Value[mgl64.Mat4]) CoordinateSystem {
	return CoordinateSystem{value: v}
}

// Global is a transform expressed in the lab frame; resolution converts it
// into the parent frame.
func Global(v Value[mgl64.Mat4]) CoordinateSystem {
	return CoordinateSystem{global: true, value: v}
}

// FromMarkers builds the frame from axes defined by data markers.
func FromMarkers(s SegmentCoordinateSystem) CoordinateSystem {
	cp := s
	return CoordinateSystem{global: true, axes: &cp}
}

// IsGlobal reports whether the transform is expressed in the lab frame.
func (c CoordinateSystem) IsGlobal() bool { return c.global }

func (c CoordinateSystem) eval(m *model.Model, d data.Source) (mgl64.Mat4, error) {
	if c.axes != nil {
		return c.axes.Eval(m, d)
	}
	if c.value.IsFixed() {
		if t, _ := c.value.FixedValue(); t == (mgl64.Mat4{}) {
			return mgl64.Ident4(), nil
		}
	}
	return c.value.Eval(m, d)
}

func (c CoordinateSystem) unresolved() string {
	if c.axes != nil {
		return c.axes.unresolved()
	}
	if !c.value.IsFixed() {
		return c.value.Name()
	}
	return ""
}

// InertiaParameters holds mass properties. The center of mass is global.
type InertiaParameters struct {
	Mass         Value[float64]
	CenterOfMass Value[mgl64.Vec3]
	Inertia      Value[mgl64.Mat3]
}

// Mesh is a display polyline of global points.
type Mesh struct {
	Points []Value[mgl64.Vec3]
}

// MeshFile references a geometry file. Its vectors are used as given.
type MeshFile struct {
	Path        string
	Color       mgl64.Vec3
	Scaling     Value[mgl64.Vec3]
	Rotation    Value[mgl64.Vec3]
	Translation Value[mgl64.Vec3]
}

// NewMeshFile returns a mesh file with unit scaling and a neutral color.
func NewMeshFile(path string) *MeshFile {
	return &MeshFile{Path: path, Color: mgl64.Vec3{1, 1, 1}, Scaling: Fixed(mgl64.Vec3{1, 1, 1})}
}

// Marker is a named point; its position is global.
type Marker struct {
	Name         string
	ParentName   string
	Position     Value[mgl64.Vec3]
	IsTechnical  bool
	IsAnatomical bool
}

// Contact is a point constrained along Axis; its position is global.
type Contact struct {
	Name       string
	ParentName string
	Position   Value[mgl64.Vec3]
	Axis       model.Translations
}

// MuscleGroup has no computed fields.
type MuscleGroup = model.MuscleGroup

// Muscle is a template muscle. Origin and insertion are global positions.
type Muscle struct {
	Name              string
	Type              model.MuscleType
	StateType         model.MuscleStateType
	MuscleGroup       string
	OriginPosition    Value[mgl64.Vec3]
	InsertionPosition Value[mgl64.Vec3]
	OptimalLength     Value[float64]
	MaximalForce      Value[float64]
	TendonSlackLength Value[float64]
	PennationAngle    Value[float64]
	MaximalExcitation *float64 // nil means model.DefaultMaximalExcitation
}

func (mu *Muscle) unresolved() string {
	for _, v := range []struct {
		name string
		val  interface{ IsFixed() bool }
	}{
		{"origin position", mu.OriginPosition},
		{"insertion position", mu.InsertionPosition},
		{"optimal length", mu.OptimalLength},
		{"maximal force", mu.MaximalForce},
		{"tendon slack length", mu.TendonSlackLength},
		{"pennation angle", mu.PennationAngle},
	} {
		if !v.val.IsFixed() {
			return v.name
		}
	}
	return ""
}

// ViaPoint routes a muscle through a global point attached to a segment.
type ViaPoint struct {
	Name        string
	ParentName  string
	MuscleName  string
	MuscleGroup string
	Position    Value[mgl64.Vec3]
}
