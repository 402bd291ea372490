// Package definition loads template models from YAML documents.
//
// A document lists segments, muscle groups, muscles and via points. Positions
// name data markers (or give fixed global coordinates); scalar parameters
// may be arithmetic expressions over document variables and marker data.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/generic"
	"github.com/rcliao/biobuddy/internal/geom"
	"github.com/rcliao/biobuddy/internal/model"
)

// Definition is a parsed document.
type Definition struct {
	Header       []HeaderField      `yaml:"header,omitempty"`
	Variables    map[string]float64 `yaml:"variables,omitempty"`
	Segments     []Segment          `yaml:"segments"`
	MuscleGroups []MuscleGroup      `yaml:"muscle_groups,omitempty"`
	Muscles      []Muscle           `yaml:"muscles,omitempty"`
	ViaPoints    []ViaPoint         `yaml:"via_points,omitempty"`
}

type HeaderField struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type Range struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

type Euler struct {
	Angles      []float64  `yaml:"angles"`
	Sequence    string     `yaml:"sequence"`
	Translation [3]float64 `yaml:"translation"`
}

type AxisDef struct {
	Name  string   `yaml:"axis"`
	Start Position `yaml:"start"`
	End   Position `yaml:"end"`
}

type Axes struct {
	Origin Position `yaml:"origin"`
	First  AxisDef  `yaml:"first"`
	Second AxisDef  `yaml:"second"`
	Keep   string   `yaml:"keep"`
}

// CoordinateSystem sets exactly one of its fields, or none for identity.
type CoordinateSystem struct {
	Euler  *Euler    `yaml:"euler,omitempty"`
	Matrix []float64 `yaml:"matrix,omitempty"` // 16 values, row-major
	Axes   *Axes     `yaml:"axes,omitempty"`
}

type Inertia struct {
	Mass         Scalar    `yaml:"mass"`
	CenterOfMass Position  `yaml:"center_of_mass"`
	Inertia      []float64 `yaml:"inertia,omitempty"` // 3 diagonal or 9 row-major values
}

type MeshFile struct {
	Path        string      `yaml:"path"`
	Color       *[3]float64 `yaml:"color,omitempty"`
	Scaling     *[3]float64 `yaml:"scaling,omitempty"`
	Rotation    [3]float64  `yaml:"rotation,omitempty"` // xyz Euler angles
	Translation [3]float64  `yaml:"translation,omitempty"`
}

type Marker struct {
	Name       string    `yaml:"name"`
	Position   *Position `yaml:"position,omitempty"`
	Technical  *bool     `yaml:"technical,omitempty"`
	Anatomical bool      `yaml:"anatomical,omitempty"`
}

type Contact struct {
	Name     string    `yaml:"name"`
	Position *Position `yaml:"position,omitempty"`
	Axis     string    `yaml:"axis"`
}

type Segment struct {
	Name             string            `yaml:"name"`
	Parent           string            `yaml:"parent,omitempty"`
	Translations     string            `yaml:"translations,omitempty"`
	Rotations        string            `yaml:"rotations,omitempty"`
	QRanges          *Range            `yaml:"q_ranges,omitempty"`
	QDotRanges       *Range            `yaml:"qdot_ranges,omitempty"`
	CoordinateSystem *CoordinateSystem `yaml:"coordinate_system,omitempty"`
	Inertia          *Inertia          `yaml:"inertia,omitempty"`
	Mesh             []Position        `yaml:"mesh,omitempty"`
	MeshFile         *MeshFile         `yaml:"mesh_file,omitempty"`
	Markers          []Marker          `yaml:"markers,omitempty"`
	Contacts         []Contact         `yaml:"contacts,omitempty"`
}

type MuscleGroup struct {
	Name            string `yaml:"name"`
	OriginParent    string `yaml:"origin_parent"`
	InsertionParent string `yaml:"insertion_parent"`
}

type Muscle struct {
	Name              string   `yaml:"name"`
	Type              string   `yaml:"type"`
	StateType         string   `yaml:"state_type,omitempty"`
	MuscleGroup       string   `yaml:"muscle_group"`
	OriginPosition    Position `yaml:"origin_position"`
	InsertionPosition Position `yaml:"insertion_position"`
	OptimalLength     Scalar   `yaml:"optimal_length"`
	MaximalForce      Scalar   `yaml:"maximal_force"`
	TendonSlackLength Scalar   `yaml:"tendon_slack_length"`
	PennationAngle    Scalar   `yaml:"pennation_angle"`
	MaximalExcitation *float64 `yaml:"maximal_excitation,omitempty"`
}

type ViaPoint struct {
	Name        string   `yaml:"name"`
	Parent      string   `yaml:"parent"`
	Muscle      string   `yaml:"muscle"`
	MuscleGroup string   `yaml:"muscle_group,omitempty"`
	Position    Position `yaml:"position"`
}

// LoadFile reads a definition from path.
func LoadFile(path string) (*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Load(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load decodes a definition and checks every expression it contains.
// Unknown keys are rejected.
func Load(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Definition
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", model.ErrInvalidDefinition)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidDefinition, err)
	}
	if err := d.checkExpressions(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Definition) checkExpressions() error {
	check := func(entity, field string, s Scalar) error {
		if s.expr == "" {
			return nil
		}
		if err := checkExpr(s.expr, d.Variables); err != nil {
			return model.NewError(model.ErrInvalidDefinition, entity, "%s: %v", field, err)
		}
		return nil
	}
	for _, s := range d.Segments {
		if s.Inertia != nil {
			if err := check(model.SegmentEntity(s.Name), "mass", s.Inertia.Mass); err != nil {
				return err
			}
		}
	}
	for _, mu := range d.Muscles {
		entity := model.MuscleEntity(mu.Name)
		for _, f := range []struct {
			name string
			val  Scalar
		}{
			{"optimal_length", mu.OptimalLength},
			{"maximal_force", mu.MaximalForce},
			{"tendon_slack_length", mu.TendonSlackLength},
			{"pennation_angle", mu.PennationAngle},
		} {
			if err := check(entity, f.name, f.val); err != nil {
				return err
			}
		}
	}
	return nil
}

// BiomodHeader returns the extra header lines to write.
func (d *Definition) BiomodHeader() biomod.Header {
	var h biomod.Header
	for _, f := range d.Header {
		h = append(h, biomod.Field{Key: f.Key, Value: f.Value})
	}
	return h
}

// Generic builds the template model. Markers and contacts without a position
// follow the data marker of the same name.
func (d *Definition) Generic() (*generic.Model, error) {
	g := generic.New()
	for _, s := range d.Segments {
		if err := d.addSegment(g, s); err != nil {
			return nil, err
		}
	}
	for _, mg := range d.MuscleGroups {
		if err := g.AddMuscleGroup(generic.MuscleGroup{
			Name:                mg.Name,
			OriginParentName:    mg.OriginParent,
			InsertionParentName: mg.InsertionParent,
		}); err != nil {
			return nil, err
		}
	}
	for _, mu := range d.Muscles {
		entity := model.MuscleEntity(mu.Name)
		if err := requireFields(entity,
			requiredField{"origin_position", mu.OriginPosition.IsSet()},
			requiredField{"insertion_position", mu.InsertionPosition.IsSet()},
			requiredField{"optimal_length", mu.OptimalLength.IsSet()},
			requiredField{"maximal_force", mu.MaximalForce.IsSet()},
			requiredField{"tendon_slack_length", mu.TendonSlackLength.IsSet()},
			requiredField{"pennation_angle", mu.PennationAngle.IsSet()},
		); err != nil {
			return nil, err
		}
		typ, err := model.ParseMuscleType(mu.Type)
		if err != nil {
			return nil, model.NewError(model.ErrInvalidDefinition, entity, "%v", err)
		}
		var state model.MuscleStateType
		if mu.StateType != "" {
			if state, err = model.ParseMuscleStateType(mu.StateType); err != nil {
				return nil, model.NewError(model.ErrInvalidDefinition, entity, "%v", err)
			}
		}
		if err := g.AddMuscle(generic.Muscle{
			Name:              mu.Name,
			Type:              typ,
			StateType:         state,
			MuscleGroup:       mu.MuscleGroup,
			OriginPosition:    mu.OriginPosition.value(),
			InsertionPosition: mu.InsertionPosition.value(),
			OptimalLength:     mu.OptimalLength.value(d.Variables),
			MaximalForce:      mu.MaximalForce.value(d.Variables),
			TendonSlackLength: mu.TendonSlackLength.value(d.Variables),
			PennationAngle:    mu.PennationAngle.value(d.Variables),
			MaximalExcitation: mu.MaximalExcitation,
		}); err != nil {
			return nil, err
		}
	}
	for _, v := range d.ViaPoints {
		if err := requireFields(model.ViaPointEntity(v.Name), requiredField{"position", v.Position.IsSet()}); err != nil {
			return nil, err
		}
		if err := g.AddViaPoint(generic.ViaPoint{
			Name:        v.Name,
			ParentName:  v.Parent,
			MuscleName:  v.Muscle,
			MuscleGroup: v.MuscleGroup,
			Position:    v.Position.value(),
		}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (d *Definition) addSegment(g *generic.Model, s Segment) error {
	entity := model.SegmentEntity(s.Name)
	invalid := func(format string, args ...any) error {
		return model.NewError(model.ErrInvalidDefinition, entity, format, args...)
	}
	gs := generic.Segment{
		Name:         s.Name,
		ParentName:   s.Parent,
		Translations: model.Translations(strings.ToLower(s.Translations)),
		Rotations:    model.Rotations(strings.ToLower(s.Rotations)),
	}
	if s.QRanges != nil {
		gs.QRanges = &model.RangeOfMotion{Type: model.RangeQ, Min: s.QRanges.Min, Max: s.QRanges.Max}
	}
	if s.QDotRanges != nil {
		gs.QDotRanges = &model.RangeOfMotion{Type: model.RangeQdot, Min: s.QDotRanges.Min, Max: s.QDotRanges.Max}
	}
	if cs := s.CoordinateSystem; cs != nil {
		var err error
		if gs.CoordinateSystem, err = cs.build(); err != nil {
			return invalid("coordinate system: %v", err)
		}
	}
	if in := s.Inertia; in != nil {
		if err := requireFields(entity,
			requiredField{"inertia.mass", in.Mass.IsSet()},
			requiredField{"inertia.center_of_mass", in.CenterOfMass.IsSet()},
		); err != nil {
			return err
		}
		var tensor mgl64.Mat3
		switch len(in.Inertia) {
		case 0:
		case 3:
			tensor = mgl64.Diag3(mgl64.Vec3{in.Inertia[0], in.Inertia[1], in.Inertia[2]})
		case 9:
			v := in.Inertia
			tensor = mgl64.Mat3FromRows(
				mgl64.Vec3{v[0], v[1], v[2]},
				mgl64.Vec3{v[3], v[4], v[5]},
				mgl64.Vec3{v[6], v[7], v[8]},
			)
		default:
			return invalid("inertia needs 3 or 9 values, got %d", len(in.Inertia))
		}
		gs.Inertia = &generic.InertiaParameters{
			Mass:         in.Mass.value(d.Variables),
			CenterOfMass: in.CenterOfMass.value(),
			Inertia:      generic.Fixed(tensor),
		}
	}
	if len(s.Mesh) > 0 {
		gs.Mesh = &generic.Mesh{}
		for i, p := range s.Mesh {
			if !p.IsSet() {
				return invalid("missing mesh point %d", i)
			}
			gs.Mesh.Points = append(gs.Mesh.Points, p.value())
		}
	}
	if mf := s.MeshFile; mf != nil {
		gmf := generic.NewMeshFile(mf.Path)
		if mf.Color != nil {
			gmf.Color = mgl64.Vec3(*mf.Color)
		}
		if mf.Scaling != nil {
			gmf.Scaling = generic.Fixed(mgl64.Vec3(*mf.Scaling))
		}
		gmf.Rotation = generic.Fixed(mgl64.Vec3(mf.Rotation))
		gmf.Translation = generic.Fixed(mgl64.Vec3(mf.Translation))
		gs.MeshFile = gmf
	}

	added, err := g.AddSegment(gs)
	if err != nil {
		return err
	}
	for _, m := range s.Markers {
		pos := generic.MeanMarker(m.Name)
		if m.Position != nil {
			pos = m.Position.value()
		}
		technical := true
		if m.Technical != nil {
			technical = *m.Technical
		}
		if err := added.AddMarker(generic.Marker{
			Name:         m.Name,
			Position:     pos,
			IsTechnical:  technical,
			IsAnatomical: m.Anatomical,
		}); err != nil {
			return err
		}
	}
	for _, c := range s.Contacts {
		pos := generic.MeanMarker(c.Name)
		if c.Position != nil {
			pos = c.Position.value()
		}
		if err := added.AddContact(generic.Contact{
			Name:     c.Name,
			Position: pos,
			Axis:     model.Translations(strings.ToLower(c.Axis)),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (cs *CoordinateSystem) build() (generic.CoordinateSystem, error) {
	set := 0
	for _, ok := range []bool{cs.Euler != nil, cs.Matrix != nil, cs.Axes != nil} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return generic.CoordinateSystem{}, fmt.Errorf("set only one of euler, matrix and axes")
	}
	switch {
	case cs.Euler != nil:
		t, err := geom.FromEulerAndTranslation(cs.Euler.Angles, cs.Euler.Sequence, mgl64.Vec3(cs.Euler.Translation))
		if err != nil {
			return generic.CoordinateSystem{}, err
		}
		return generic.Local(t), nil
	case cs.Matrix != nil:
		if len(cs.Matrix) != 16 {
			return generic.CoordinateSystem{}, fmt.Errorf("matrix needs 16 values, got %d", len(cs.Matrix))
		}
		var t mgl64.Mat4
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				t.Set(r, c, cs.Matrix[r*4+c])
			}
		}
		return generic.Local(t), nil
	case cs.Axes != nil:
		a := cs.Axes
		if !a.Origin.IsSet() {
			return generic.CoordinateSystem{}, fmt.Errorf("missing axes origin")
		}
		first, err := a.First.build()
		if err != nil {
			return generic.CoordinateSystem{}, err
		}
		second, err := a.Second.build()
		if err != nil {
			return generic.CoordinateSystem{}, err
		}
		keep, err := geom.ParseAxis(a.Keep)
		if err != nil {
			return generic.CoordinateSystem{}, fmt.Errorf("keep: %w", err)
		}
		return generic.FromMarkers(generic.SegmentCoordinateSystem{
			Origin:     a.Origin.value(),
			First:      first,
			Second:     second,
			AxisToKeep: keep,
		}), nil
	}
	return generic.CoordinateSystem{}, nil
}

func (a AxisDef) build() (generic.Axis, error) {
	name, err := geom.ParseAxis(a.Name)
	if err != nil {
		return generic.Axis{}, err
	}
	if !a.Start.IsSet() || !a.End.IsSet() {
		return generic.Axis{}, fmt.Errorf("axis %s needs start and end", a.Name)
	}
	return generic.Axis{Name: name, Start: a.Start.value(), End: a.End.value()}, nil
}

type requiredField struct {
	name string
	set  bool
}

// requireFields fails on the first field the document left out. Omitted
// fields are never defaulted.
func requireFields(entity string, fields ...requiredField) error {
	for _, f := range fields {
		if !f.set {
			return model.NewError(model.ErrInvalidDefinition, entity, "missing %s", f.name)
		}
	}
	return nil
}
