package generic

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/geom"
	"github.com/rcliao/biobuddy/internal/model"
)

// Resolve evaluates every computed field of g against d and returns the
// numeric model. Segments are resolved first in declaration order, each seeing
// the segments before it; muscle groups, muscles and via points follow. On
// error no model is returned.
func Resolve(g *Model, d data.Source) (*model.Model, error) {
	out := model.New()
	for _, s := range g.segments {
		if err := resolveSegment(out, s, d); err != nil {
			return nil, err
		}
	}
	for _, mg := range g.muscleGroups {
		if err := out.AddMuscleGroup(mg); err != nil {
			return nil, err
		}
	}
	for _, mu := range g.muscles {
		if err := resolveMuscle(out, mu, d); err != nil {
			return nil, err
		}
	}
	for _, v := range g.viaPoints {
		if err := resolveViaPoint(out, v, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func resolveSegment(out *model.Model, s *Segment, d data.Source) error {
	entity := model.SegmentEntity(s.Name)
	parentGlobal, err := frameOf(out, s.ParentName, entity)
	if err != nil {
		return err
	}

	cs, err := s.CoordinateSystem.eval(out, d)
	if err != nil {
		return fieldError(entity, "coordinate system", err)
	}
	if !geom.IsFiniteMat4(cs) {
		return model.NewError(model.ErrNonFinite, entity, "coordinate system")
	}
	if s.CoordinateSystem.IsGlobal() {
		cs = geom.Compose(geom.Inverse(parentGlobal), cs)
	}
	toLocal := geom.Inverse(geom.Compose(parentGlobal, cs))

	resolved := model.Segment{
		Name:             s.Name,
		ParentName:       s.ParentName,
		Translations:     s.Translations,
		Rotations:        s.Rotations,
		QRanges:          s.QRanges,
		QDotRanges:       s.QDotRanges,
		CoordinateSystem: cs,
	}
	r := resolver{m: out, d: d, entity: entity}
	if in := s.Inertia; in != nil {
		resolved.Inertia = &model.InertiaParameters{
			Mass:         r.scalar("mass", in.Mass),
			CenterOfMass: r.point("center of mass", in.CenterOfMass, toLocal),
			Inertia:      evalField(&r, "inertia", in.Inertia, geom.IsFiniteMat3),
		}
	}
	if s.Mesh != nil {
		resolved.Mesh = &model.Mesh{}
		for i, p := range s.Mesh.Points {
			resolved.Mesh.Points = append(resolved.Mesh.Points, r.point(fmt.Sprintf("mesh point %d", i), p, toLocal))
		}
	}
	if mf := s.MeshFile; mf != nil {
		resolved.MeshFile = &model.MeshFile{
			Path:        mf.Path,
			Color:       mf.Color,
			Scaling:     r.vector("mesh scaling", mf.Scaling),
			Rotation:    r.vector("mesh rotation", mf.Rotation),
			Translation: r.vector("mesh translation", mf.Translation),
		}
	}
	if r.err != nil {
		return r.err
	}

	var markers []model.Marker
	for _, m := range s.markers {
		mr := resolver{m: out, d: d, entity: model.MarkerEntity(m.Name)}
		pos := mr.point("position", m.Position, toLocal)
		if mr.err != nil {
			return attachError(entity, mr.err)
		}
		markers = append(markers, model.Marker{
			Name: m.Name, ParentName: m.ParentName, Position: pos,
			IsTechnical: m.IsTechnical, IsAnatomical: m.IsAnatomical,
		})
	}
	var contacts []model.Contact
	for _, c := range s.contacts {
		cr := resolver{m: out, d: d, entity: model.ContactEntity(c.Name)}
		pos := cr.point("position", c.Position, toLocal)
		if cr.err != nil {
			return attachError(entity, cr.err)
		}
		contacts = append(contacts, model.Contact{Name: c.Name, ParentName: c.ParentName, Position: pos, Axis: c.Axis})
	}

	added, err := out.AddSegment(resolved)
	if err != nil {
		return err
	}
	for _, m := range markers {
		if err := added.AddMarker(m); err != nil {
			return err
		}
	}
	for _, c := range contacts {
		if err := added.AddContact(c); err != nil {
			return err
		}
	}
	return nil
}

func resolveMuscle(out *model.Model, mu *Muscle, d data.Source) error {
	entity := model.MuscleEntity(mu.Name)
	grp, ok := out.MuscleGroup(mu.MuscleGroup)
	if !ok {
		return model.NewError(model.ErrDanglingReference, entity, "muscle group %q is not registered", mu.MuscleGroup)
	}
	origin, err := frameOf(out, grp.OriginParentName, entity)
	if err != nil {
		return err
	}
	insertion, err := frameOf(out, grp.InsertionParentName, entity)
	if err != nil {
		return err
	}
	r := resolver{m: out, d: d, entity: entity}
	excitation := model.DefaultMaximalExcitation
	if mu.MaximalExcitation != nil {
		excitation = *mu.MaximalExcitation
	}
	resolved := model.Muscle{
		Name:              mu.Name,
		Type:              mu.Type,
		StateType:         mu.StateType,
		MuscleGroup:       mu.MuscleGroup,
		OriginPosition:    r.point("origin position", mu.OriginPosition, geom.Inverse(origin)),
		InsertionPosition: r.point("insertion position", mu.InsertionPosition, geom.Inverse(insertion)),
		OptimalLength:     r.scalar("optimal length", mu.OptimalLength),
		MaximalForce:      r.scalar("maximal force", mu.MaximalForce),
		TendonSlackLength: r.scalar("tendon slack length", mu.TendonSlackLength),
		PennationAngle:    r.scalar("pennation angle", mu.PennationAngle),
		MaximalExcitation: excitation,
	}
	if r.err != nil {
		return r.err
	}
	return out.AddMuscle(resolved)
}

func resolveViaPoint(out *model.Model, v *ViaPoint, d data.Source) error {
	entity := model.ViaPointEntity(v.Name)
	parent, err := frameOf(out, v.ParentName, entity)
	if err != nil {
		return err
	}
	r := resolver{m: out, d: d, entity: entity}
	pos := r.point("position", v.Position, geom.Inverse(parent))
	if r.err != nil {
		return r.err
	}
	return out.AddViaPoint(model.ViaPoint{
		Name:        v.Name,
		ParentName:  v.ParentName,
		MuscleName:  v.MuscleName,
		MuscleGroup: v.MuscleGroup,
		Position:    pos,
	})
}

// frameOf returns the global transform of a resolved segment.
func frameOf(out *model.Model, name, entity string) (mgl64.Mat4, error) {
	if model.IsRoot(name) {
		return mgl64.Ident4(), nil
	}
	if _, ok := out.Segment(name); !ok {
		return mgl64.Mat4{}, model.NewError(model.ErrDanglingReference, entity, "segment %q is not resolved before it", name)
	}
	return out.GlobalTransform(name)
}

// resolver evaluates the fields of one entity, keeping the first error.
type resolver struct {
	m      *model.Model
	d      data.Source
	entity string
	err    error
}

func evalField[T any](r *resolver, field string, v Value[T], finite func(T) bool) T {
	var zero T
	if r.err != nil {
		return zero
	}
	out, err := v.Eval(r.m, r.d)
	if err != nil {
		r.err = fieldError(r.entity, field, err)
		return zero
	}
	if !finite(out) {
		r.err = model.NewError(model.ErrNonFinite, r.entity, "%s (%s) = %v", field, v.Name(), out)
		return zero
	}
	return out
}

func (r *resolver) scalar(field string, v Value[float64]) float64 {
	return evalField(r, field, v, func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) })
}

func (r *resolver) vector(field string, v Value[mgl64.Vec3]) mgl64.Vec3 {
	return evalField(r, field, v, geom.IsFiniteVec3)
}

// point evaluates a global position and moves it into a local frame.
func (r *resolver) point(field string, v Value[mgl64.Vec3], toLocal mgl64.Mat4) mgl64.Vec3 {
	p := r.vector(field, v)
	if r.err != nil {
		return p
	}
	return geom.Apply(toLocal, p)
}

// fieldError classifies an evaluation failure. Missing or unusable data is a
// data lookup failure; model errors keep their kind.
func fieldError(entity, field string, err error) error {
	kind := model.ErrInvalidDefinition
	var me *model.Error
	switch {
	case errors.Is(err, data.ErrNotFound), errors.Is(err, data.ErrNoValidFrames), errors.Is(err, data.ErrFrameOutOfRange):
		kind = model.ErrDataLookup
	case errors.As(err, &me):
		kind = me.Kind
	case errors.Is(err, geom.ErrDegenerateAxes):
		kind = model.ErrNonFinite
	}
	return &model.Error{Kind: kind, Entity: entity, Msg: field, Err: err}
}

// attachError prefixes an attachment failure with its owning segment.
func attachError(segment string, err error) error {
	var me *model.Error
	if errors.As(err, &me) {
		return &model.Error{Kind: me.Kind, Entity: segment + " " + me.Entity, Msg: me.Msg, Err: me.Err}
	}
	return err
}
