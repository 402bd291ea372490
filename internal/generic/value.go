// Package generic describes template models whose geometry is computed from
// marker data, and resolves them into numeric models.
//
// Every geometric field is a Value: either a fixed number or a named function
// of the partially resolved model and the data source. Positions produced by
// a Value are expressed in the global (lab) frame; Resolve moves them into
// the owning segment's frame.
package generic

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/model"
)

// Func computes a value from the model resolved so far and the data source.
// Functions that need neither simply ignore them.
type Func[T any] func(m *model.Model, d data.Source) (T, error)

// Value is a fixed value or a named function producing one. The zero Value is
// Fixed at T's zero value.
type Value[T any] struct {
	fixed T
	name  string
	fn    Func[T]
}

// Fixed returns a Value that always evaluates to v.
func Fixed[T any](v T) Value[T] { return Value[T]{fixed: v} }

// From returns a Value computed by fn. The name appears in error messages.
func From[T any](name string, fn Func[T]) Value[T] {
	if fn == nil {
		panic("generic.From: nil function")
	}
	return Value[T]{name: name, fn: fn}
}

// IsFixed reports whether v needs no evaluation.
func (v Value[T]) IsFixed() bool { return v.fn == nil }

// Name describes v for messages.
func (v Value[T]) Name() string {
	if v.fn == nil {
		return "fixed"
	}
	return v.name
}

// FixedValue returns the fixed value and whether v is fixed.
func (v Value[T]) FixedValue() (T, bool) { return v.fixed, v.fn == nil }

// Eval evaluates v.
func (v Value[T]) Eval(m *model.Model, d data.Source) (T, error) {
	if v.fn == nil {
		return v.fixed, nil
	}
	return v.fn(m, d)
}

// MeanMarker is the mean global position of a data marker.
func MeanMarker(name string) Value[mgl64.Vec3] {
	return From(fmt.Sprintf("marker(%s)", name), func(_ *model.Model, d data.Source) (mgl64.Vec3, error) {
		return data.MeanPosition(d, name)
	})
}

// Markers is the centroid of several data markers.
func Markers(names ...string) Value[mgl64.Vec3] {
	cp := append([]string(nil), names...)
	return From(fmt.Sprintf("markers(%s)", strings.Join(cp, ",")), func(_ *model.Model, d data.Source) (mgl64.Vec3, error) {
		return data.MeanOf(d, cp...)
	})
}

// ModelMarker is the global position of a marker already placed on a
// resolved segment. It lets later segments build on earlier ones.
func ModelMarker(name string) Value[mgl64.Vec3] {
	return From(fmt.Sprintf("model_marker(%s)", name), func(m *model.Model, _ data.Source) (mgl64.Vec3, error) {
		s, _, ok := m.FindMarker(name)
		if !ok {
			return mgl64.Vec3{}, model.NewError(model.ErrDanglingReference, model.MarkerEntity(name), "not placed on any resolved segment")
		}
		return m.MarkerGlobalPosition(s.Name, name)
	})
}
