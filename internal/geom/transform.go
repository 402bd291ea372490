// Package geom provides the rigid-body transforms used to place segments.
//
// Transforms are homogeneous 4x4 matrices (mgl64.Mat4, column-major). A
// segment's local transform maps points from its own frame into its parent's
// frame; Compose(parent, child) chains them toward the global frame.
package geom

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Axis names one of the three Cartesian axes.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// ParseAxis parses "x", "y" or "z" (case-insensitive).
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return X, nil
	case "y":
		return Y, nil
	case "z":
		return Z, nil
	}
	return 0, fmt.Errorf("invalid axis %q (valid: x, y, z)", s)
}

// Sequence is an ordered list of distinct rotation axes, e.g. "xyz" or "zx".
type Sequence []Axis

func (s Sequence) String() string {
	var b strings.Builder
	for _, a := range s {
		b.WriteString(a.String())
	}
	return b.String()
}

// ParseSequence parses one to three distinct axis letters.
func ParseSequence(seq string) (Sequence, error) {
	seq = strings.ToLower(strings.TrimSpace(seq))
	if len(seq) == 0 || len(seq) > 3 {
		return nil, fmt.Errorf("invalid axis sequence %q: expected 1 to 3 axes", seq)
	}
	out := make(Sequence, 0, len(seq))
	seen := map[Axis]bool{}
	for _, r := range seq {
		a, err := ParseAxis(string(r))
		if err != nil {
			return nil, fmt.Errorf("invalid axis sequence %q: %w", seq, err)
		}
		if seen[a] {
			return nil, fmt.Errorf("invalid axis sequence %q: repeated axis %s", seq, a)
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}

func rotation(a Axis, angle float64) mgl64.Mat4 {
	switch a {
	case X:
		return mgl64.HomogRotate3DX(angle)
	case Y:
		return mgl64.HomogRotate3DY(angle)
	default:
		return mgl64.HomogRotate3DZ(angle)
	}
}

// FromEulerAndTranslation builds a homogeneous transform from Euler angles
// applied about the axes of seq (intrinsic, left to right) and a translation.
func FromEulerAndTranslation(angles []float64, seq string, translation mgl64.Vec3) (mgl64.Mat4, error) {
	axes, err := ParseSequence(seq)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	if len(angles) != len(axes) {
		return mgl64.Mat4{}, fmt.Errorf("sequence %q needs %d angles, got %d", seq, len(axes), len(angles))
	}
	t := mgl64.Ident4()
	for i, a := range axes {
		t = t.Mul4(rotation(a, angles[i]))
	}
	t.SetCol(3, translation.Vec4(1))
	return t, nil
}

// Compose returns parent·child: the child's local-to-parent transform
// followed by the parent's transform to the global frame.
func Compose(parent, child mgl64.Mat4) mgl64.Mat4 {
	return parent.Mul4(child)
}

// Inverse returns the inverse of a rigid transform, [Rᵀ | -Rᵀp].
func Inverse(t mgl64.Mat4) mgl64.Mat4 {
	rt := t.Mat3().Transpose()
	p := rt.Mul3x1(Translation(t)).Mul(-1)
	out := rt.Mat4()
	out.SetCol(3, p.Vec4(1))
	return out
}

// Apply maps point p through t.
func Apply(t mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
	return t.Mul4x1(p.Vec4(1)).Vec3()
}

// Rotation returns the 3x3 rotation block of t.
func Rotation(t mgl64.Mat4) mgl64.Mat3 { return t.Mat3() }

// Translation returns the translation column of t.
func Translation(t mgl64.Mat4) mgl64.Vec3 { return t.Col(3).Vec3() }

// ToEuler recovers the angles of a three-axis sequence such that
// FromEulerAndTranslation(angles, seq, Translation(t)) reproduces t.
func ToEuler(t mgl64.Mat4, seq string) ([]float64, error) {
	axes, err := ParseSequence(seq)
	if err != nil {
		return nil, err
	}
	if len(axes) != 3 {
		return nil, fmt.Errorf("euler extraction needs a three-axis sequence, got %q", seq)
	}
	i, j, k := int(axes[0]), int(axes[1]), int(axes[2])
	// +1 for cyclic orders (xyz, yzx, zxy), -1 otherwise.
	sign := 1.0
	if (j-i+3)%3 != 1 {
		sign = -1
	}
	r := t.Mat3()
	at := func(row, col int) float64 { return r.At(row, col) }

	sb := clamp(sign*at(i, k), -1, 1)
	beta := math.Asin(sb)
	alpha := math.Atan2(-sign*at(j, k), at(k, k))
	gamma := math.Atan2(-sign*at(i, j), at(i, i))
	return []float64{alpha, beta, gamma}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
