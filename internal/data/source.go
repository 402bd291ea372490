// Package data provides marker trajectories that generic models are resolved
// against.
package data

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotFound        = errors.New("marker not found")
	ErrFrameOutOfRange = errors.New("frame out of range")
	ErrNoValidFrames   = errors.New("no valid frames")
)

// NotFoundError names the marker a lookup could not find.
type NotFoundError struct {
	Marker string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("marker %q not found in data", e.Marker)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Source is a set of named marker trajectories sampled over the same frames.
// Positions are in the global (lab) frame; a gap is reported as NaN.
type Source interface {
	MarkerPosition(name string, frame int) (mgl64.Vec3, error)
	FrameCount() int
	MarkerNames() []string
}

// MeanPosition averages a marker over all frames, ignoring gaps.
func MeanPosition(src Source, name string) (mgl64.Vec3, error) {
	if src == nil {
		return mgl64.Vec3{}, &NotFoundError{Marker: name}
	}
	n := src.FrameCount()
	var axes [3][]float64
	for f := 0; f < n; f++ {
		p, err := src.MarkerPosition(name, f)
		if err != nil {
			return mgl64.Vec3{}, err
		}
		if isGap(p) {
			continue
		}
		for i := range axes {
			axes[i] = append(axes[i], p[i])
		}
	}
	if len(axes[0]) == 0 {
		// Surface unknown markers even when the source has no frames.
		if n == 0 {
			if _, err := src.MarkerPosition(name, 0); errors.Is(err, ErrNotFound) {
				return mgl64.Vec3{}, err
			}
		}
		return mgl64.Vec3{}, fmt.Errorf("%w for marker %q", ErrNoValidFrames, name)
	}
	var out mgl64.Vec3
	for i := range axes {
		out[i] = stat.Mean(axes[i], nil)
	}
	return out, nil
}

// MeanOf returns the centroid of the mean positions of names.
func MeanOf(src Source, names ...string) (mgl64.Vec3, error) {
	if len(names) == 0 {
		return mgl64.Vec3{}, errors.New("no marker names given")
	}
	var sum mgl64.Vec3
	for _, name := range names {
		p, err := MeanPosition(src, name)
		if err != nil {
			return mgl64.Vec3{}, err
		}
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(names))), nil
}

func isGap(p mgl64.Vec3) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
