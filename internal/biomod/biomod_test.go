package biomod

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/generic"
	"github.com/rcliao/biobuddy/internal/geom"
	"github.com/rcliao/biobuddy/internal/model"
)

// newPendulum builds the muscled pendulum: a fixed ground and a pendulum
// with four DOF, a contact, a mesh file and one muscle with a via point.
func newPendulum(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	if _, err := m.AddSegment(model.NewSegment("GROUND")); err != nil {
		t.Fatal(err)
	}
	p := model.NewSegment("PENDULUM")
	p.ParentName = "GROUND"
	p.Translations = model.TransXYZ
	p.Rotations = model.RotX
	p.QRanges = &model.RangeOfMotion{Type: model.RangeQ, Min: []float64{-1, -1, -1, -math.Pi}, Max: []float64{1, 1, 1, math.Pi}}
	p.QDotRanges = &model.RangeOfMotion{Type: model.RangeQdot, Min: []float64{-10, -10, -10, -math.Pi * 10}, Max: []float64{10, 10, 10, math.Pi * 10}}
	p.Inertia = &model.InertiaParameters{Mass: 1.5, CenterOfMass: mgl64.Vec3{0, 0, -0.5}, Inertia: mgl64.Diag3(mgl64.Vec3{0.1, 0.1, 0.01})}
	p.MeshFile = &model.MeshFile{
		Path:        "meshes/pendulum.stl",
		Color:       mgl64.Vec3{0, 0, 1},
		Scaling:     mgl64.Vec3{1, 1, 10},
		Rotation:    mgl64.Vec3{math.Pi / 2, 0, 0},
		Translation: mgl64.Vec3{0.1, 0, 0},
	}
	cs, err := geom.FromEulerAndTranslation([]float64{0.1, -0.2, 0.3}, "xyz", mgl64.Vec3{0, 0.25, 1})
	if err != nil {
		t.Fatal(err)
	}
	p.CoordinateSystem = cs
	seg, err := m.AddSegment(p)
	if err != nil {
		t.Fatal(err)
	}
	mustOK(t, seg.AddMarker(model.Marker{Name: "TIP", Position: mgl64.Vec3{0, 0, -1}, IsTechnical: true, IsAnatomical: true}))
	mustOK(t, seg.AddContact(model.Contact{Name: "PENDULUM_CONTACT", Axis: model.TransXYZ}))
	mustOK(t, m.AddMuscleGroup(model.MuscleGroup{Name: "PENDULUM_MUSCLE_GROUP", OriginParentName: "GROUND", InsertionParentName: "PENDULUM"}))
	mustOK(t, m.AddMuscle(model.Muscle{
		Name:              "PENDULUM_MUSCLE",
		Type:              model.MuscleHillThelen,
		StateType:         model.StateDeGroote,
		MuscleGroup:       "PENDULUM_MUSCLE_GROUP",
		InsertionPosition: mgl64.Vec3{0, 0, 1},
		OptimalLength:     0.1,
		MaximalForce:      100,
		TendonSlackLength: 0.05,
		PennationAngle:    0.05,
		MaximalExcitation: 1,
	}))
	mustOK(t, m.AddViaPoint(model.ViaPoint{Name: "PENDULUM_VIA", ParentName: "PENDULUM", MuscleName: "PENDULUM_MUSCLE", MuscleGroup: "PENDULUM_MUSCLE_GROUP", Position: mgl64.Vec3{0, 0, 0.5}}))
	return m
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestWrite_SegmentOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, newPendulum(t), nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "version\t4\n") {
		t.Errorf("expected version line first, got %q", out[:20])
	}
	ground := strings.Index(out, "segment\tGROUND\n")
	pendulum := strings.Index(out, "segment\tPENDULUM\n")
	if ground < 0 || pendulum < 0 || ground > pendulum {
		t.Fatalf("expected GROUND before PENDULUM (got %d, %d)", ground, pendulum)
	}
	if !strings.Contains(out, "\tparent\tGROUND\n") {
		t.Error("expected PENDULUM parent line")
	}
	if !strings.Contains(out, "\ttranslations\txyz\n\trotations\tx\n") {
		t.Error("expected DOF lines")
	}

	group := strings.Index(out, "musclegroup\tPENDULUM_MUSCLE_GROUP\n")
	muscle := strings.Index(out, "muscle\tPENDULUM_MUSCLE\n")
	via := strings.Index(out, "viapoint\tPENDULUM_VIA\n")
	if !(pendulum < group && group < muscle && muscle < via) {
		t.Errorf("expected segments, groups, muscle, via point in order (got %d %d %d %d)", pendulum, group, muscle, via)
	}
}

func TestWrite_Header(t *testing.T) {
	var buf bytes.Buffer
	h := Header{{Key: "gravity", Value: "0 0 -9.81"}, {Key: "variables", Value: "subject_01"}}
	if err := Write(&buf, model.New(), h); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "version\t4\ngravity\t0 0 -9.81\nvariables\tsubject_01\n\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	for _, bad := range []Field{{Key: ""}, {Key: "two words"}, {Key: "segment", Value: "X"}, {Key: "note", Value: "a\nb"}, {Key: "note", Value: "a // b"}} {
		buf.Reset()
		if err := Write(&buf, model.New(), Header{bad}); !errors.Is(err, model.ErrInvalidDefinition) {
			t.Errorf("field %+v: expected ErrInvalidDefinition, got %v", bad, err)
		}
		if buf.Len() != 0 {
			t.Errorf("field %+v: expected nothing written, got %q", bad, buf.String())
		}
	}
}

func TestRoundTrip(t *testing.T) {
	orig := newPendulum(t)
	h := Header{{Key: "gravity", Value: "0 0 -9.81"}}
	first, err := Render(orig, h)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Read(bytes.NewReader(first))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != Version {
		t.Errorf("expected version %d, got %d", Version, doc.Version)
	}
	if len(doc.Header) != 1 || doc.Header[0] != h[0] {
		t.Errorf("expected header %v, got %v", h, doc.Header)
	}
	got := doc.Model
	if len(got.Segments()) != len(orig.Segments()) {
		t.Fatalf("expected %d segments, got %d", len(orig.Segments()), len(got.Segments()))
	}
	for i, want := range orig.Segments() {
		s := got.Segments()[i]
		if s.Name != want.Name || s.ParentName != want.ParentName {
			t.Errorf("segment %d: expected %s<-%s, got %s<-%s", i, want.Name, want.ParentName, s.Name, s.ParentName)
		}
		if s.CoordinateSystem != want.CoordinateSystem {
			t.Errorf("%s: coordinate system changed", s.Name)
		}
		if s.DOFCount() != want.DOFCount() {
			t.Errorf("%s: expected %d DOF, got %d", s.Name, want.DOFCount(), s.DOFCount())
		}
		if (want.QRanges == nil) != (s.QRanges == nil) {
			t.Fatalf("%s: q ranges presence changed", s.Name)
		}
		if want.QRanges != nil {
			for j := range want.QRanges.Min {
				if s.QRanges.Min[j] != want.QRanges.Min[j] || s.QRanges.Max[j] != want.QRanges.Max[j] {
					t.Errorf("%s: q range %d changed", s.Name, j)
				}
			}
		}
	}

	p, _ := got.Segment("PENDULUM")
	if p.Inertia == nil || p.Inertia.Mass != 1.5 || p.MeshFile == nil || p.MeshFile.Scaling != (mgl64.Vec3{1, 1, 10}) {
		t.Errorf("pendulum body parameters lost: %+v %+v", p.Inertia, p.MeshFile)
	}
	if mk, ok := p.Marker("TIP"); !ok || !mk.IsAnatomical || mk.Position != (mgl64.Vec3{0, 0, -1}) {
		t.Errorf("marker TIP lost: %+v", mk)
	}
	if c, ok := p.Contact("PENDULUM_CONTACT"); !ok || c.Axis != model.TransXYZ {
		t.Errorf("contact lost: %+v", c)
	}
	if mu, ok := got.Muscle("PENDULUM_MUSCLE"); !ok || mu.Type != model.MuscleHillThelen || mu.MaximalForce != 100 {
		t.Errorf("muscle lost: %+v", mu)
	}
	if len(got.ViaPointsOf("PENDULUM_MUSCLE")) != 1 {
		t.Error("via point lost")
	}

	second, err := Render(got, doc.Header)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("re-rendered output differs:\n%s\n---\n%s", first, second)
	}
}

func TestWrite_DanglingParent(t *testing.T) {
	m := newPendulum(t)
	seg, _ := m.Segment("PENDULUM")
	seg.ParentName = "GHOST"

	var buf bytes.Buffer
	err := Write(&buf, m, nil)
	if !errors.Is(err, model.ErrDanglingReference) {
		t.Fatalf("expected ErrDanglingReference, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no partial output, got %d bytes", buf.Len())
	}
}

func TestWrite_RejectsUnreadableNames(t *testing.T) {
	tests := []struct {
		name   string
		rename func(m *model.Model)
	}{
		{"segment with space", func(m *model.Model) {
			seg, _ := m.Segment("PENDULUM")
			seg.Name = "UPPER ARM"
		}},
		{"segment named root", func(m *model.Model) {
			seg, _ := m.Segment("GROUND")
			seg.Name = "root"
		}},
		{"marker with comment", func(m *model.Model) {
			seg, _ := m.Segment("PENDULUM")
			seg.Markers[0].Name = "TIP//1"
		}},
		{"muscle with tab", func(m *model.Model) {
			mu, _ := m.Muscle("PENDULUM_MUSCLE")
			mu.Name = "PENDULUM\tMUSCLE"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPendulum(t)
			tt.rename(m)
			var buf bytes.Buffer
			if err := Write(&buf, m, nil); !errors.Is(err, model.ErrInvalidDefinition) {
				t.Fatalf("expected ErrInvalidDefinition, got %v", err)
			}
			if buf.Len() != 0 {
				t.Errorf("expected no partial output, got %d bytes", buf.Len())
			}
		})
	}
}

func TestRead_RootAlias(t *testing.T) {
	in := "version 4\nsegment TRUNK\n\tparent ROOT\nendsegment\nsegment ARM\n\tparent TRUNK\nendsegment\n"
	doc, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	trunk, _ := doc.Model.Segment("TRUNK")
	if trunk.ParentName != model.Root {
		t.Fatalf("expected parent %q, got %q", model.Root, trunk.ParentName)
	}

	out, err := Render(doc.Model, nil)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Read(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if arm, _ := again.Model.Segment("ARM"); arm == nil || arm.ParentName != "TRUNK" {
		t.Errorf("expected ARM under TRUNK after round trip, got %+v", arm)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pendulum.bioMod")
	if err := WriteFile(path, newPendulum(t), nil); err != nil {
		t.Fatal(err)
	}
	doc, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Model.Segments()) != 2 {
		t.Errorf("expected 2 segments, got %d", len(doc.Model.Segments()))
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the output file, got %d entries", len(entries))
	}
}

func TestWriteFile_UnresolvedLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bioMod")
	previous := []byte("version 4\n// previous model\n")
	if err := os.WriteFile(path, previous, 0o644); err != nil {
		t.Fatal(err)
	}

	g := generic.New()
	_, err := g.AddSegment(generic.Segment{Name: "GROUND"})
	mustOK(t, err)
	mustOK(t, g.AddMuscleGroup(generic.MuscleGroup{Name: "G", OriginParentName: "GROUND", InsertionParentName: "GROUND"}))
	mustOK(t, g.AddMuscle(generic.Muscle{
		Name:        "M",
		Type:        model.MuscleHill,
		MuscleGroup: "G",
		OptimalLength: generic.From("from data", func(*model.Model, data.Source) (float64, error) {
			return 0.1, nil
		}),
	}))

	err = WriteFile(path, g, nil)
	if !errors.Is(err, model.ErrUnresolvedEntity) {
		t.Fatalf("expected ErrUnresolvedEntity, got %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, previous) {
		t.Errorf("expected file untouched, got %q", got)
	}

	fresh := filepath.Join(dir, "fresh.bioMod")
	if err := WriteFile(fresh, g, nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(fresh); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected no file created, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no temporary files left, got %d entries", len(entries))
	}
}

func TestWriteFile_IOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "model.bioMod")
	if err := WriteFile(path, newPendulum(t), nil); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestRead_EulerRT(t *testing.T) {
	in := `version 4
// hand written
segment TRUNK
	translations yz
	rotations x
	rangesQ
		-1 1
		-1 1
		-3.14 3.14
	mesh 0 0 0
	mesh 0 0 0.53
endsegment
segment HEAD
	parent TRUNK
	RTinMatrix 0
	RT 0 0 0 xyz 0 0 0.53
endsegment
	marker TOP_HEAD
		parent HEAD
		position 0 0 0.24
	endmarker
`
	doc, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	m := doc.Model
	trunk, _ := m.Segment("TRUNK")
	if trunk.DOFCount() != 3 || len(trunk.QRanges.Min) != 3 || len(trunk.Mesh.Points) != 2 {
		t.Errorf("unexpected trunk %+v", trunk)
	}
	if trunk.ParentName != model.Root {
		t.Errorf("expected root parent, got %q", trunk.ParentName)
	}
	p, err := m.MarkerGlobalPosition("HEAD", "TOP_HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if !vecNear(p, mgl64.Vec3{0, 0, 0.77}, 1e-12) {
		t.Errorf("expected TOP_HEAD at (0,0,0.77), got %v", p)
	}
	if mk, _ := m.Segments()[1].Marker("TOP_HEAD"); !mk.IsTechnical {
		t.Error("expected markers to default to technical")
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind error
	}{
		{"no version", "segment A\nendsegment\n", nil},
		{"unknown field", "version 4\nsegment A\n\tcolour red\nendsegment\n", nil},
		{"bad number", "version 4\nsegment A\n\tmass heavy\nendsegment\n", nil},
		{"truncated", "version 4\nsegment A\n\tmass 1\n", nil},
		{"unknown parent", "version 4\nsegment A\n\tparent B\nendsegment\n", model.ErrDanglingReference},
		{"marker on unknown segment", "version 4\nmarker M\n\tparent B\nendmarker\n", model.ErrDanglingReference},
		{"muscle without group", "version 4\nmuscle M\n\ttype hill\n\tmusclegroup X\nendmuscle\n", model.ErrDanglingReference},
		{"bad ranges", "version 4\nsegment A\n\trotations x\n\trangesQ 1 -1\nendsegment\n", model.ErrInvalidDefinition},
		{"duplicate segment", "version 4\nsegment A\nendsegment\nsegment A\nendsegment\n", model.ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.kind != nil && !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
			var se *SyntaxError
			if tt.kind == nil && !errors.As(err, &se) {
				t.Errorf("expected a SyntaxError, got %v", err)
			}
		})
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
