package generic

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/geom"
	"github.com/rcliao/biobuddy/internal/model"
)

const tol = 1e-9

// referenceLeg is the numeric model the synthetic trial is recorded from.
func referenceLeg(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()

	pelvisCS, err := geom.FromEulerAndTranslation([]float64{0.3}, "z", mgl64.Vec3{0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	pelvis := model.NewSegment("PELVIS")
	pelvis.CoordinateSystem = pelvisCS
	pelvis.Translations = model.TransXYZ
	pelvis.Rotations = model.RotXYZ
	for name, p := range map[string]mgl64.Vec3{
		"PELVIS_O": {0, 0, 0},
		"PELVIS_X": {1, 0, 0},
		"PELVIS_Y": {0, 1, 0},
	} {
		pelvis.Markers = append(pelvis.Markers, model.Marker{Name: name, ParentName: "PELVIS", Position: p})
	}
	if _, err := m.AddSegment(pelvis); err != nil {
		t.Fatal(err)
	}

	thighCS, err := geom.FromEulerAndTranslation([]float64{0.4}, "x", mgl64.Vec3{0.1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	thigh := model.NewSegment("THIGH")
	thigh.ParentName = "PELVIS"
	thigh.CoordinateSystem = thighCS
	thigh.Rotations = model.RotX
	for name, p := range map[string]mgl64.Vec3{
		"HIP":     {0, 0, 0},
		"THIGH_Z": {0, 0, -1},
		"THIGH_X": {1, 0, 0.2},
		"KNEE":    {0, 0, -0.4},
	} {
		thigh.Markers = append(thigh.Markers, model.Marker{Name: name, ParentName: "THIGH", Position: p})
	}
	if _, err := m.AddSegment(thigh); err != nil {
		t.Fatal(err)
	}
	return m
}

// record samples every marker of m over a few frames with zero-mean noise
// and one gap, so mean positions equal the true positions.
func record(t *testing.T, m *model.Model, skip ...string) *data.Trial {
	t.Helper()
	skipped := map[string]bool{}
	for _, s := range skip {
		skipped[s] = true
	}
	tr := data.NewTrial()
	for _, s := range m.Segments() {
		for _, mk := range s.Markers {
			if skipped[mk.Name] {
				continue
			}
			p, err := m.MarkerGlobalPosition(s.Name, mk.Name)
			if err != nil {
				t.Fatal(err)
			}
			noise := mgl64.Vec3{0.01, -0.02, 0.005}
			nan := math.NaN()
			frames := []mgl64.Vec3{p.Add(noise), {nan, nan, nan}, p.Sub(noise)}
			if err := tr.Add(mk.Name, frames); err != nil {
				t.Fatal(err)
			}
		}
	}
	return tr
}

func genericLeg(t *testing.T) *Model {
	t.Helper()
	g := New()
	pelvis, err := g.AddSegment(Segment{
		Name:         "PELVIS",
		Translations: model.TransXYZ,
		Rotations:    model.RotXYZ,
		CoordinateSystem: FromMarkers(SegmentCoordinateSystem{
			Origin:     MeanMarker("PELVIS_O"),
			First:      Axis{Name: geom.X, Start: MeanMarker("PELVIS_O"), End: MeanMarker("PELVIS_X")},
			Second:     Axis{Name: geom.Y, Start: MeanMarker("PELVIS_O"), End: MeanMarker("PELVIS_Y")},
			AxisToKeep: geom.X,
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"PELVIS_O", "PELVIS_X", "PELVIS_Y"} {
		if err := pelvis.AddMarker(Marker{Name: name, Position: MeanMarker(name), IsTechnical: true}); err != nil {
			t.Fatal(err)
		}
	}

	thigh, err := g.AddSegment(Segment{
		Name:       "THIGH",
		ParentName: "PELVIS",
		Rotations:  model.RotX,
		CoordinateSystem: FromMarkers(SegmentCoordinateSystem{
			Origin:     MeanMarker("HIP"),
			First:      Axis{Name: geom.Z, Start: MeanMarker("THIGH_Z"), End: MeanMarker("HIP")},
			Second:     Axis{Name: geom.X, Start: MeanMarker("HIP"), End: MeanMarker("THIGH_X")},
			AxisToKeep: geom.Z,
		}),
		Inertia: &InertiaParameters{
			Mass:         Fixed(8.0),
			CenterOfMass: Markers("HIP", "KNEE"),
			Inertia:      Fixed(mgl64.Diag3(mgl64.Vec3{0.1, 0.1, 0.02})),
		},
		Mesh: &Mesh{Points: []Value[mgl64.Vec3]{MeanMarker("HIP"), MeanMarker("KNEE")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"HIP", "THIGH_Z", "THIGH_X", "KNEE"} {
		if err := thigh.AddMarker(Marker{Name: name, Position: MeanMarker(name)}); err != nil {
			t.Fatal(err)
		}
	}

	mustOK(t, g.AddMuscleGroup(MuscleGroup{Name: "HIP_FLEXORS", OriginParentName: "PELVIS", InsertionParentName: "THIGH"}))
	mustOK(t, g.AddMuscle(Muscle{
		Name:              "PSOAS",
		Type:              model.MuscleHillThelen,
		StateType:         model.StateDeGroote,
		MuscleGroup:       "HIP_FLEXORS",
		OriginPosition:    MeanMarker("PELVIS_X"),
		InsertionPosition: MeanMarker("KNEE"),
		OptimalLength:     From("half hip-knee", hipKneeHalf),
		MaximalForce:      Fixed(500.0),
		TendonSlackLength: Fixed(0.1),
	}))
	mustOK(t, g.AddViaPoint(ViaPoint{
		Name:        "PSOAS_VIA",
		ParentName:  "THIGH",
		MuscleName:  "PSOAS",
		MuscleGroup: "HIP_FLEXORS",
		Position:    MeanMarker("THIGH_X"),
	}))
	return g
}

// hipKneeHalf depends on the already resolved thigh.
func hipKneeHalf(m *model.Model, _ data.Source) (float64, error) {
	hip, err := m.MarkerGlobalPosition("THIGH", "HIP")
	if err != nil {
		return 0, err
	}
	knee, err := m.MarkerGlobalPosition("THIGH", "KNEE")
	if err != nil {
		return 0, err
	}
	return knee.Sub(hip).Len() / 2, nil
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestResolve_RecoversReferenceModel(t *testing.T) {
	ref := referenceLeg(t)
	got, err := Resolve(genericLeg(t), record(t, ref))
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"PELVIS", "THIGH"} {
		want, _ := ref.Segment(name)
		seg, ok := got.Segment(name)
		if !ok {
			t.Fatalf("segment %s missing", name)
		}
		if !matNear(seg.CoordinateSystem, want.CoordinateSystem, tol) {
			t.Errorf("%s: coordinate system\n got %v\nwant %v", name, seg.CoordinateSystem, want.CoordinateSystem)
		}
		for _, wm := range want.Markers {
			gm, ok := seg.Marker(wm.Name)
			if !ok {
				t.Errorf("%s: marker %s missing", name, wm.Name)
				continue
			}
			if !vecNear(gm.Position, wm.Position, tol) {
				t.Errorf("%s: marker %s at %v, want %v", name, wm.Name, gm.Position, wm.Position)
			}
		}
	}

	thigh, _ := got.Segment("THIGH")
	if !vecNear(thigh.Inertia.CenterOfMass, mgl64.Vec3{0, 0, -0.2}, tol) {
		t.Errorf("center of mass %v, want (0,0,-0.2)", thigh.Inertia.CenterOfMass)
	}
	if len(thigh.Mesh.Points) != 2 || !vecNear(thigh.Mesh.Points[1], mgl64.Vec3{0, 0, -0.4}, tol) {
		t.Errorf("mesh points %v", thigh.Mesh.Points)
	}

	psoas, ok := got.Muscle("PSOAS")
	if !ok {
		t.Fatal("muscle PSOAS missing")
	}
	if !vecNear(psoas.OriginPosition, mgl64.Vec3{1, 0, 0}, tol) {
		t.Errorf("origin %v, want pelvis-local (1,0,0)", psoas.OriginPosition)
	}
	if !vecNear(psoas.InsertionPosition, mgl64.Vec3{0, 0, -0.4}, tol) {
		t.Errorf("insertion %v, want thigh-local (0,0,-0.4)", psoas.InsertionPosition)
	}
	if math.Abs(psoas.OptimalLength-0.2) > tol {
		t.Errorf("optimal length %v, want 0.2", psoas.OptimalLength)
	}
	via, ok := got.ViaPoint("PSOAS_VIA")
	if !ok || !vecNear(via.Position, mgl64.Vec3{1, 0, 0.2}, tol) {
		t.Errorf("via point %+v", via)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("resolved model invalid: %v", err)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	tr := record(t, referenceLeg(t))
	g := genericLeg(t)
	a, err := Resolve(g, tr)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Resolve(g, tr)
	if err != nil {
		t.Fatal(err)
	}
	for _, sa := range a.Segments() {
		sb, _ := b.Segment(sa.Name)
		if !matNear(sa.CoordinateSystem, sb.CoordinateSystem, tol) {
			t.Errorf("%s differs between runs", sa.Name)
		}
		for i := range sa.Markers {
			if !vecNear(sa.Markers[i].Position, sb.Markers[i].Position, tol) {
				t.Errorf("%s marker %s differs between runs", sa.Name, sa.Markers[i].Name)
			}
		}
	}
}

func TestResolve_MissingMarker(t *testing.T) {
	tr := record(t, referenceLeg(t), "HIP")
	got, err := Resolve(genericLeg(t), tr)
	if got != nil {
		t.Error("expected no model on failure")
	}
	if !errors.Is(err, model.ErrDataLookup) {
		t.Fatalf("expected ErrDataLookup, got %v", err)
	}
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("expected the data error to be wrapped, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, `segment "THIGH"`) || !strings.Contains(msg, `"HIP"`) {
		t.Errorf("error should name segment and marker: %s", msg)
	}
}

func TestResolve_NonFinite(t *testing.T) {
	g := New()
	_, err := g.AddSegment(Segment{
		Name: "BAD",
		Inertia: &InertiaParameters{
			Mass: From("broken scale", func(*model.Model, data.Source) (float64, error) {
				return math.Inf(1), nil
			}),
		},
	})
	mustOK(t, err)
	if _, err := Resolve(g, nil); !errors.Is(err, model.ErrNonFinite) {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
}

func TestResolve_DegenerateAxes(t *testing.T) {
	p := Fixed(mgl64.Vec3{1, 2, 3})
	g := New()
	_, err := g.AddSegment(Segment{
		Name: "FLAT",
		CoordinateSystem: FromMarkers(SegmentCoordinateSystem{
			Origin:     p,
			First:      Axis{Name: geom.X, Start: p, End: p},
			Second:     Axis{Name: geom.Y, Start: p, End: Fixed(mgl64.Vec3{1, 3, 3})},
			AxisToKeep: geom.X,
		}),
	})
	mustOK(t, err)
	_, err = Resolve(g, nil)
	if !errors.Is(err, geom.ErrDegenerateAxes) {
		t.Errorf("expected ErrDegenerateAxes, got %v", err)
	}
}

func TestResolve_ParentOrder(t *testing.T) {
	g := New()
	_, err := g.AddSegment(Segment{Name: "CHILD", ParentName: "PARENT"})
	mustOK(t, err)
	_, err = g.AddSegment(Segment{Name: "PARENT"})
	mustOK(t, err)
	if _, err := Resolve(g, nil); !errors.Is(err, model.ErrDanglingReference) {
		t.Errorf("expected ErrDanglingReference, got %v", err)
	}
}

func TestResolve_UnknownMuscleGroup(t *testing.T) {
	g := New()
	_, err := g.AddSegment(Segment{Name: "GROUND"})
	mustOK(t, err)
	mustOK(t, g.AddMuscle(Muscle{Name: "M", Type: model.MuscleHill, MuscleGroup: "X"}))
	if _, err := Resolve(g, nil); !errors.Is(err, model.ErrDanglingReference) {
		t.Errorf("expected ErrDanglingReference, got %v", err)
	}
}

func TestResolve_ModelMarker(t *testing.T) {
	g := New()
	base, err := g.AddSegment(Segment{Name: "BASE", CoordinateSystem: Local(mgl64.Translate3D(0, 0, 1))})
	mustOK(t, err)
	mustOK(t, base.AddMarker(Marker{Name: "TIP", Position: Fixed(mgl64.Vec3{0, 0, 1.5})}))
	_, err = g.AddSegment(Segment{
		Name:             "TOP",
		ParentName:       "BASE",
		CoordinateSystem: Global(From("at tip", translateTo(ModelMarker("TIP")))),
	})
	mustOK(t, err)

	got, err := Resolve(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	tip, _ := got.Segment("BASE")
	if mk, _ := tip.Marker("TIP"); !vecNear(mk.Position, mgl64.Vec3{0, 0, 0.5}, tol) {
		t.Errorf("TIP local position %v, want (0,0,0.5)", mk.Position)
	}
	top, _ := got.Segment("TOP")
	if tr := geom.Translation(top.CoordinateSystem); !vecNear(tr, mgl64.Vec3{0, 0, 0.5}, tol) {
		t.Errorf("TOP local translation %v, want (0,0,0.5)", tr)
	}

	// The same template without the base marker cannot resolve.
	g2 := New()
	_, _ = g2.AddSegment(Segment{Name: "TOP", CoordinateSystem: Global(From("at tip", translateTo(ModelMarker("TIP"))))})
	if _, err := Resolve(g2, nil); !errors.Is(err, model.ErrDanglingReference) {
		t.Errorf("expected ErrDanglingReference, got %v", err)
	}
}

func translateTo(p Value[mgl64.Vec3]) Func[mgl64.Mat4] {
	return func(m *model.Model, d data.Source) (mgl64.Mat4, error) {
		v, err := p.Eval(m, d)
		if err != nil {
			return mgl64.Mat4{}, err
		}
		return mgl64.Translate3D(v.X(), v.Y(), v.Z()), nil
	}
}

func TestReal(t *testing.T) {
	g := New()
	_, err := g.AddSegment(Segment{Name: "GROUND"})
	mustOK(t, err)
	pendulum, err := g.AddSegment(Segment{
		Name:         "PENDULUM",
		ParentName:   "GROUND",
		Translations: model.TransXYZ,
		Rotations:    model.RotX,
		QRanges: &model.RangeOfMotion{
			Type: model.RangeQ,
			Min:  []float64{-1, -1, -1, -math.Pi},
			Max:  []float64{1, 1, 1, math.Pi},
		},
		MeshFile: &MeshFile{
			Path:        "pendulum.stl",
			Color:       mgl64.Vec3{0, 0, 1},
			Scaling:     Fixed(mgl64.Vec3{1, 1, 10}),
			Rotation:    Fixed(mgl64.Vec3{math.Pi / 2, 0, 0}),
			Translation: Fixed(mgl64.Vec3{0.1, 0, 0}),
		},
	})
	mustOK(t, err)
	mustOK(t, pendulum.AddContact(Contact{Name: "PENDULUM_CONTACT", Axis: model.TransXYZ}))
	mustOK(t, g.AddMuscleGroup(MuscleGroup{Name: "PENDULUM_MUSCLE_GROUP", OriginParentName: "GROUND", InsertionParentName: "PENDULUM"}))
	mu := Muscle{
		Name:              "PENDULUM_MUSCLE",
		Type:              model.MuscleHillThelen,
		StateType:         model.StateDeGroote,
		MuscleGroup:       "PENDULUM_MUSCLE_GROUP",
		InsertionPosition: Fixed(mgl64.Vec3{0, 0, 1}),
		OptimalLength:     Fixed(0.1),
		MaximalForce:      Fixed(100.0),
		TendonSlackLength: Fixed(0.05),
		PennationAngle:    Fixed(0.05),
	}
	mustOK(t, g.AddMuscle(mu))

	m, err := g.Real()
	if err != nil {
		t.Fatal(err)
	}
	if m.DOFCount() != 4 {
		t.Errorf("expected 4 DOF, got %d", m.DOFCount())
	}
	if got, _ := m.Muscle("PENDULUM_MUSCLE"); got.MaximalExcitation != model.DefaultMaximalExcitation {
		t.Errorf("expected default excitation %v, got %v", model.DefaultMaximalExcitation, got.MaximalExcitation)
	}

	half := 0.5
	mu.Name = "HALF_EXCITED"
	mu.MaximalExcitation = &half
	mustOK(t, g.AddMuscle(mu))
	m, err = g.Real()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Muscle("HALF_EXCITED"); got.MaximalExcitation != 0.5 {
		t.Errorf("expected excitation 0.5, got %v", got.MaximalExcitation)
	}

	mu.Name = "COMPUTED"
	mu.MaximalForce = From("scaled force", func(*model.Model, data.Source) (float64, error) { return 200, nil })
	mustOK(t, g.AddMuscle(mu))
	_, err = g.Real()
	if !errors.Is(err, model.ErrUnresolvedEntity) {
		t.Fatalf("expected ErrUnresolvedEntity, got %v", err)
	}
	if !strings.Contains(err.Error(), `muscle "COMPUTED"`) || !strings.Contains(err.Error(), "maximal force") {
		t.Errorf("error should name muscle and field: %v", err)
	}
}

func TestModelRegistration(t *testing.T) {
	g := New()
	s, err := g.AddSegment(Segment{Name: "TRUNK"})
	mustOK(t, err)
	if s.ParentName != model.Root {
		t.Errorf("expected root parent, got %q", s.ParentName)
	}
	if _, err := g.AddSegment(Segment{Name: "TRUNK"}); !errors.Is(err, model.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	if err := s.AddMarker(Marker{Name: "M", ParentName: "HEAD"}); !errors.Is(err, model.ErrDanglingReference) {
		t.Errorf("expected ErrDanglingReference, got %v", err)
	}
	mustOK(t, s.AddMarker(Marker{Name: "M"}))
	if err := s.AddMarker(Marker{Name: "M"}); !errors.Is(err, model.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	if got, ok := g.Segment("TRUNK"); !ok || len(got.Markers()) != 1 || got.Markers()[0].ParentName != "TRUNK" {
		t.Errorf("marker not attached to registered segment")
	}
	if err := g.AddMuscle(Muscle{}); !errors.Is(err, model.ErrInvalidDefinition) {
		t.Errorf("expected ErrInvalidDefinition for unnamed muscle, got %v", err)
	}
}

// vecNear compares component-wise with an absolute tolerance.
func vecNear(a, b mgl64.Vec3, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func matNear(a, b mgl64.Mat4, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
