package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrDegenerateAxes is returned when axes cannot span a frame.
var ErrDegenerateAxes = errors.New("degenerate axes")

const degenerateEpsilon = 1e-12

// AxisVector is a named axis direction running from Start to End.
type AxisVector struct {
	Name  Axis
	Start mgl64.Vec3
	End   mgl64.Vec3
}

// Direction returns End - Start.
func (a AxisVector) Direction() mgl64.Vec3 { return a.End.Sub(a.Start) }

// FromAxes builds a right-handed orthonormal frame located at origin. The
// third axis is the cross product of the two given axes; the given axis that
// is not kept is then recomputed from the other two.
func FromAxes(origin mgl64.Vec3, first, second AxisVector, keep Axis) (mgl64.Mat4, error) {
	if first.Name == second.Name {
		return mgl64.Mat4{}, fmt.Errorf("%w: both axes are %s", ErrDegenerateAxes, first.Name)
	}
	if keep != first.Name && keep != second.Name {
		return mgl64.Mat4{}, fmt.Errorf("%w: axis to keep %s is neither %s nor %s", ErrDegenerateAxes, keep, first.Name, second.Name)
	}
	third := Axis(3 - int(first.Name) - int(second.Name))

	var cols [3]mgl64.Vec3
	cols[first.Name] = first.Direction()
	cols[second.Name] = second.Direction()
	for _, a := range []Axis{first.Name, second.Name} {
		if cols[a].Len() < degenerateEpsilon {
			return mgl64.Mat4{}, fmt.Errorf("%w: axis %s has zero length", ErrDegenerateAxes, a)
		}
	}

	cols[third] = crossFor(cols, third)
	if cols[third].Len() < degenerateEpsilon {
		return mgl64.Mat4{}, fmt.Errorf("%w: axes %s and %s are parallel", ErrDegenerateAxes, first.Name, second.Name)
	}
	recompute := first.Name
	if keep == first.Name {
		recompute = second.Name
	}
	cols[recompute] = crossFor(cols, recompute)

	for i := range cols {
		cols[i] = cols[i].Normalize()
	}
	t := mgl64.Mat4FromCols(cols[0].Vec4(0), cols[1].Vec4(0), cols[2].Vec4(0), origin.Vec4(1))
	return t, nil
}

// crossFor returns e_a = e_(a+1) × e_(a+2), the right-handed identity.
func crossFor(cols [3]mgl64.Vec3, a Axis) mgl64.Vec3 {
	p := (int(a) + 1) % 3
	q := (int(a) + 2) % 3
	return cols[p].Cross(cols[q])
}

// IsFiniteVec3 reports whether every component is a finite number.
func IsFiniteVec3(v mgl64.Vec3) bool {
	return finite(v[:]...)
}

// IsFiniteMat3 reports whether every entry is a finite number.
func IsFiniteMat3(m mgl64.Mat3) bool {
	return finite(m[:]...)
}

// IsFiniteMat4 reports whether every entry is a finite number.
func IsFiniteMat4(m mgl64.Mat4) bool {
	return finite(m[:]...)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
