package generic

import (
	"github.com/rcliao/biobuddy/internal/model"
)

// Model is a template model. Registries keep declaration order; references
// between entities are checked when the model is resolved.
type Model struct {
	segments     []*Segment
	muscleGroups []MuscleGroup
	muscles      []*Muscle
	viaPoints    []*ViaPoint
	names        map[string]map[string]bool
}

// New returns an empty template model.
func New() *Model {
	return &Model{names: map[string]map[string]bool{}}
}

func (g *Model) claim(kind, name, entity string) error {
	if name == "" {
		return model.NewError(model.ErrInvalidDefinition, entity, "name is required")
	}
	if g.names[kind] == nil {
		g.names[kind] = map[string]bool{}
	}
	if g.names[kind][name] {
		return model.NewError(model.ErrDuplicateName, entity, "already registered")
	}
	g.names[kind][name] = true
	return nil
}

// AddSegment registers s and returns the registered segment so markers and
// contacts can be attached to it.
func (g *Model) AddSegment(s Segment) (*Segment, error) {
	if err := g.claim("segment", s.Name, model.SegmentEntity(s.Name)); err != nil {
		return nil, err
	}
	if s.ParentName == "" {
		s.ParentName = model.Root
	}
	s.markers = append([]Marker(nil), s.markers...)
	s.contacts = append([]Contact(nil), s.contacts...)
	g.segments = append(g.segments, &s)
	return &s, nil
}

// Segment returns the named segment.
func (g *Model) Segment(name string) (*Segment, bool) {
	for _, s := range g.segments {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Segments returns the segments in declaration order.
func (g *Model) Segments() []*Segment { return append([]*Segment(nil), g.segments...) }

// AddMuscleGroup registers mg.
func (g *Model) AddMuscleGroup(mg MuscleGroup) error {
	if err := g.claim("group", mg.Name, model.MuscleGroupEntity(mg.Name)); err != nil {
		return err
	}
	g.muscleGroups = append(g.muscleGroups, mg)
	return nil
}

// MuscleGroups returns the groups in declaration order.
func (g *Model) MuscleGroups() []MuscleGroup { return append([]MuscleGroup(nil), g.muscleGroups...) }

// AddMuscle registers mu.
func (g *Model) AddMuscle(mu Muscle) error {
	if err := g.claim("muscle", mu.Name, model.MuscleEntity(mu.Name)); err != nil {
		return err
	}
	if mu.MaximalExcitation != nil {
		v := *mu.MaximalExcitation
		mu.MaximalExcitation = &v
	}
	g.muscles = append(g.muscles, &mu)
	return nil
}

// Muscles returns the muscles in declaration order.
func (g *Model) Muscles() []*Muscle { return append([]*Muscle(nil), g.muscles...) }

// AddViaPoint registers v.
func (g *Model) AddViaPoint(v ViaPoint) error {
	if err := g.claim("via", v.Name, model.ViaPointEntity(v.Name)); err != nil {
		return err
	}
	g.viaPoints = append(g.viaPoints, &v)
	return nil
}

// ViaPoints returns the via points in declaration order.
func (g *Model) ViaPoints() []*ViaPoint { return append([]*ViaPoint(nil), g.viaPoints...) }

// Real resolves g without marker data. It fails with ErrUnresolvedEntity if
// any field is still computed, so writers can accept either kind of model.
func (g *Model) Real() (*model.Model, error) {
	if entity, field := g.firstUnresolved(); entity != "" {
		return nil, model.NewError(model.ErrUnresolvedEntity, entity, "%s must be resolved against data first", field)
	}
	return Resolve(g, nil)
}

func (g *Model) firstUnresolved() (entity, field string) {
	for _, s := range g.segments {
		if e, f := s.unresolved(); e != "" {
			return e, f
		}
	}
	for _, mu := range g.muscles {
		if f := mu.unresolved(); f != "" {
			return model.MuscleEntity(mu.Name), f
		}
	}
	for _, v := range g.viaPoints {
		if !v.Position.IsFixed() {
			return model.ViaPointEntity(v.Name), "position (" + v.Position.Name() + ")"
		}
	}
	return "", ""
}
