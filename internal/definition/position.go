package definition

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/biobuddy/internal/generic"
)

// Position is a global point. In YAML it is one of
//
//	[x, y, z]
//	{value: [x, y, z]}
//	{marker: NAME}           mean position of a data marker
//	{markers: [A, B, ...]}   centroid of data markers
//	{model_marker: NAME}     a marker already placed on a resolved segment
type Position struct {
	Value       *[3]float64 `yaml:"value,omitempty"`
	Marker      string      `yaml:"marker,omitempty"`
	Markers     []string    `yaml:"markers,omitempty"`
	ModelMarker string      `yaml:"model_marker,omitempty"`
}

// UnmarshalYAML accepts the short sequence form as well as the mapping.
func (p *Position) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.SequenceNode {
		if len(n.Content) != 3 {
			return fmt.Errorf("line %d: position needs 3 values, got %d", n.Line, len(n.Content))
		}
		var v [3]float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		p.Value = &v
		return nil
	}
	type plain Position
	var out plain
	if err := n.Decode(&out); err != nil {
		return err
	}
	set := 0
	if out.Value != nil {
		set++
	}
	if out.Marker != "" {
		set++
	}
	if len(out.Markers) > 0 {
		set++
	}
	if out.ModelMarker != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("line %d: position needs exactly one of value, marker, markers, model_marker", n.Line)
	}
	*p = Position(out)
	return nil
}

// IsSet reports whether the position was given.
func (p Position) IsSet() bool {
	return p.Value != nil || p.Marker != "" || len(p.Markers) > 0 || p.ModelMarker != ""
}

// value must only be called on a set position.
func (p Position) value() generic.Value[mgl64.Vec3] {
	switch {
	case p.Marker != "":
		return generic.MeanMarker(p.Marker)
	case len(p.Markers) > 0:
		return generic.Markers(p.Markers...)
	case p.ModelMarker != "":
		return generic.ModelMarker(p.ModelMarker)
	}
	return generic.Fixed(mgl64.Vec3(*p.Value))
}
