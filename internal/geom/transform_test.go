package geom

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const eps = 1e-9

func mustEuler(t *testing.T, angles []float64, seq string, tr mgl64.Vec3) mgl64.Mat4 {
	t.Helper()
	m, err := FromEulerAndTranslation(angles, seq, tr)
	if err != nil {
		t.Fatalf("euler %q: %v", seq, err)
	}
	return m
}

func TestFromEulerAndTranslation_Identity(t *testing.T) {
	m := mustEuler(t, []float64{0, 0, 0}, "xyz", mgl64.Vec3{0, 0, 0.53})
	want := mgl64.Translate3D(0, 0, 0.53)
	if !matNear(m, want, eps) {
		t.Errorf("expected %v, got %v", want, m)
	}
}

func TestFromEulerAndTranslation_RotatesPoint(t *testing.T) {
	m := mustEuler(t, []float64{math.Pi / 2}, "x", mgl64.Vec3{1, 0, 0})
	got := Apply(m, mgl64.Vec3{0, 1, 0})
	want := mgl64.Vec3{1, 0, 1}
	if !vecNear(got, want, eps) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFromEulerAndTranslation_Errors(t *testing.T) {
	tests := []struct {
		name   string
		angles []float64
		seq    string
	}{
		{"empty sequence", nil, ""},
		{"too long", []float64{0, 0, 0, 0}, "xyzx"},
		{"repeated axis", []float64{0, 0}, "xx"},
		{"bad letter", []float64{0}, "w"},
		{"angle count mismatch", []float64{0, 0}, "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromEulerAndTranslation(tt.angles, tt.seq, mgl64.Vec3{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestComposeAssociative(t *testing.T) {
	a := mustEuler(t, []float64{0.3, -0.2, 1.1}, "xyz", mgl64.Vec3{0.1, 0.2, 0.3})
	b := mustEuler(t, []float64{-0.7, 0.4}, "zx", mgl64.Vec3{0, 0, -0.42})
	c := mustEuler(t, []float64{1.2, 0.05, -0.9}, "yzx", mgl64.Vec3{0.5, -1, 2})

	left := Compose(Compose(a, b), c)
	right := Compose(a, Compose(b, c))
	if !matNear(left, right, eps) {
		t.Errorf("composition not associative:\n%v\n%v", left, right)
	}
}

func TestComposeOrder(t *testing.T) {
	parent := mgl64.Translate3D(0, 0, 1)
	child := mustEuler(t, []float64{math.Pi / 2}, "z", mgl64.Vec3{1, 0, 0})
	global := Compose(parent, child)
	// Child origin lands at parent translation + child translation.
	got := Translation(global)
	if !vecNear(got, mgl64.Vec3{1, 0, 1}, eps) {
		t.Errorf("expected child origin (1,0,1), got %v", got)
	}
}

func TestInverse(t *testing.T) {
	m := mustEuler(t, []float64{0.3, -1.2, 2.0}, "zyx", mgl64.Vec3{0.4, -0.1, 0.9})
	got := Compose(m, Inverse(m))
	if !matNear(got, mgl64.Ident4(), eps) {
		t.Errorf("expected identity, got %v", got)
	}
}

func TestToEulerRoundTrip(t *testing.T) {
	angles := []float64{0.3, -0.5, 1.2}
	for _, seq := range []string{"xyz", "xzy", "yxz", "yzx", "zxy", "zyx"} {
		t.Run(seq, func(t *testing.T) {
			m := mustEuler(t, angles, seq, mgl64.Vec3{1, 2, 3})
			got, err := ToEuler(m, seq)
			if err != nil {
				t.Fatal(err)
			}
			for i := range angles {
				if math.Abs(got[i]-angles[i]) > eps {
					t.Errorf("angle %d: expected %v, got %v", i, angles[i], got[i])
				}
			}
		})
	}
	if _, err := ToEuler(mgl64.Ident4(), "xy"); err == nil {
		t.Error("expected error for two-axis sequence")
	}
}

func TestFromAxes(t *testing.T) {
	origin := mgl64.Vec3{1, 1, 1}
	// Slightly non-orthogonal x axis; z is kept exactly.
	first := AxisVector{Name: Z, Start: origin, End: origin.Add(mgl64.Vec3{0, 0, 2})}
	second := AxisVector{Name: X, Start: origin, End: origin.Add(mgl64.Vec3{1, 0, 0.1})}

	m, err := FromAxes(origin, first, second, Z)
	if err != nil {
		t.Fatal(err)
	}
	if !matNear(m, mgl64.Translate3D(1, 1, 1), eps) {
		t.Errorf("expected axis-aligned frame at origin, got %v", m)
	}
	r := Rotation(m)
	if math.Abs(r.Det()-1) > eps {
		t.Errorf("expected proper rotation, det=%v", r.Det())
	}
}

func TestFromAxes_Degenerate(t *testing.T) {
	o := mgl64.Vec3{}
	tests := []struct {
		name          string
		first, second AxisVector
		keep          Axis
	}{
		{"same axis", AxisVector{Name: X, End: mgl64.Vec3{1, 0, 0}}, AxisVector{Name: X, End: mgl64.Vec3{0, 1, 0}}, X},
		{"zero length", AxisVector{Name: X}, AxisVector{Name: Y, End: mgl64.Vec3{0, 1, 0}}, X},
		{"parallel", AxisVector{Name: X, End: mgl64.Vec3{1, 0, 0}}, AxisVector{Name: Y, End: mgl64.Vec3{2, 0, 0}}, X},
		{"keep not given", AxisVector{Name: X, End: mgl64.Vec3{1, 0, 0}}, AxisVector{Name: Y, End: mgl64.Vec3{0, 1, 0}}, Z},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromAxes(o, tt.first, tt.second, tt.keep)
			if !errors.Is(err, ErrDegenerateAxes) {
				t.Errorf("expected ErrDegenerateAxes, got %v", err)
			}
		})
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFiniteVec3(mgl64.Vec3{1, 2, 3}) {
		t.Error("expected finite")
	}
	if IsFiniteVec3(mgl64.Vec3{math.NaN(), 0, 0}) {
		t.Error("expected NaN to be non-finite")
	}
	if IsFiniteMat4(mgl64.Translate3D(math.Inf(1), 0, 0)) {
		t.Error("expected Inf to be non-finite")
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
