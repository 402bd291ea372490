// Package model defines the resolved ("real") biomechanical model: rigid
// segments arranged in a tree, their attachments, and the muscles spanning them.
package model

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/geom"
)

// Root is the sentinel parent of top-level segments. An empty parent name
// means the same thing.
const Root = "base"

// IsRoot reports whether name designates the root frame.
func IsRoot(name string) bool { return name == "" || name == Root }

// RootAlias is the other spelling bioMod files use for the root parent. It is
// matched case-insensitively and reserved like Root.
const RootAlias = "root"

// checkName rejects names that would not read back as a single bioMod token.
func checkName(entity, name string) error {
	switch {
	case name == "":
		return invalidf(entity, "name is required")
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return invalidf(entity, "name %q contains whitespace", name)
	case strings.Contains(name, "//"):
		return invalidf(entity, "name %q contains a comment marker", name)
	}
	return nil
}

// Translations lists the axes a segment may translate along, e.g. "yz".
type Translations string

// Rotations lists the axes a segment may rotate about, in order, e.g. "zx".
type Rotations string

const (
	TransNone Translations = ""
	TransX    Translations = "x"
	TransY    Translations = "y"
	TransZ    Translations = "z"
	TransXY   Translations = "xy"
	TransXZ   Translations = "xz"
	TransYZ   Translations = "yz"
	TransXYZ  Translations = "xyz"
)

const (
	RotNone Rotations = ""
	RotX    Rotations = "x"
	RotY    Rotations = "y"
	RotZ    Rotations = "z"
	RotXY   Rotations = "xy"
	RotXZ   Rotations = "xz"
	RotYX   Rotations = "yx"
	RotYZ   Rotations = "yz"
	RotZX   Rotations = "zx"
	RotZY   Rotations = "zy"
	RotXYZ  Rotations = "xyz"
	RotZYX  Rotations = "zyx"
)

// Count returns the number of translational DOF.
func (t Translations) Count() int { return len(t) }

// Count returns the number of rotational DOF.
func (r Rotations) Count() int { return len(r) }

// validate checks letters are distinct axes. Translations must also be in
// x, y, z order since their order carries no meaning.
func (t Translations) validate() error {
	if t == TransNone {
		return nil
	}
	seq, err := geom.ParseSequence(string(t))
	if err != nil {
		return err
	}
	for i := 1; i < len(seq); i++ {
		if seq[i] < seq[i-1] {
			return fmt.Errorf("translations %q must be listed in x, y, z order", string(t))
		}
	}
	return nil
}

func (r Rotations) validate() error {
	if r == RotNone {
		return nil
	}
	_, err := geom.ParseSequence(string(r))
	return err
}

// RangeType distinguishes generalized-coordinate from velocity bounds.
type RangeType string

const (
	RangeQ    RangeType = "Q"
	RangeQdot RangeType = "Qdot"
)

// RangeOfMotion bounds each DOF of a segment, in translation-then-rotation order.
type RangeOfMotion struct {
	Type RangeType `json:"type"`
	Min  []float64 `json:"min"`
	Max  []float64 `json:"max"`
}

func (r *RangeOfMotion) validate(dof int) error {
	if len(r.Min) != len(r.Max) {
		return fmt.Errorf("%s range has %d min bounds and %d max bounds", r.Type, len(r.Min), len(r.Max))
	}
	if len(r.Min) != dof {
		return fmt.Errorf("%s range has %d bounds but segment has %d DOF", r.Type, len(r.Min), dof)
	}
	for i := range r.Min {
		if r.Min[i] > r.Max[i] {
			return fmt.Errorf("%s range %d: min %g > max %g", r.Type, i, r.Min[i], r.Max[i])
		}
	}
	return nil
}

// InertiaParameters holds mass properties expressed in the segment frame.
type InertiaParameters struct {
	Mass         float64    `json:"mass"`
	CenterOfMass mgl64.Vec3 `json:"center_of_mass"`
	Inertia      mgl64.Mat3 `json:"inertia"`
}

// Mesh is a polyline of points in the segment frame, used for display.
type Mesh struct {
	Points []mgl64.Vec3 `json:"points"`
}

// MeshFile references an external geometry file placed in the segment frame.
type MeshFile struct {
	Path        string     `json:"path"`
	Color       mgl64.Vec3 `json:"color"`
	Scaling     mgl64.Vec3 `json:"scaling"`
	Rotation    mgl64.Vec3 `json:"rotation"` // xyz Euler angles
	Translation mgl64.Vec3 `json:"translation"`
}

// NewMeshFile returns a mesh file with unit scaling and a neutral color.
func NewMeshFile(path string) *MeshFile {
	return &MeshFile{Path: path, Color: mgl64.Vec3{1, 1, 1}, Scaling: mgl64.Vec3{1, 1, 1}}
}

// Marker is a named point in its parent segment's frame.
type Marker struct {
	Name         string     `json:"name"`
	ParentName   string     `json:"parent"`
	Position     mgl64.Vec3 `json:"position"`
	IsTechnical  bool       `json:"technical"`
	IsAnatomical bool       `json:"anatomical"`
}

// Contact is a point in its parent segment's frame constrained along Axis.
type Contact struct {
	Name       string       `json:"name"`
	ParentName string       `json:"parent"`
	Position   mgl64.Vec3   `json:"position"`
	Axis       Translations `json:"axis"`
}

// ViaPoint routes a muscle through a point of a segment frame.
type ViaPoint struct {
	Name        string     `json:"name"`
	ParentName  string     `json:"parent"`
	MuscleName  string     `json:"muscle"`
	MuscleGroup string     `json:"muscle_group"`
	Position    mgl64.Vec3 `json:"position"`
}

// MuscleGroup names the two segments a set of muscles spans.
type MuscleGroup struct {
	Name                string `json:"name"`
	OriginParentName    string `json:"origin_parent"`
	InsertionParentName string `json:"insertion_parent"`
}

// MuscleType selects the muscle force model.
type MuscleType string

const (
	MuscleHill         MuscleType = "hill"
	MuscleHillThelen   MuscleType = "hillthelen"
	MuscleHillDeGroote MuscleType = "hilldegroote"
)

// DefaultMaximalExcitation applies when a muscle does not set one.
const DefaultMaximalExcitation = 1.0

// MuscleStateType selects the activation dynamics.
type MuscleStateType string

const (
	StateDeGroote MuscleStateType = "degroote"
	StateBuchanan MuscleStateType = "buchanan"
)

// ParseMuscleType accepts the lower-case token or an upper-case alias.
func ParseMuscleType(s string) (MuscleType, error) {
	t := MuscleType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case MuscleHill, MuscleHillThelen, MuscleHillDeGroote:
		return t, nil
	}
	return "", fmt.Errorf("invalid muscle type %q (valid: hill, hillthelen, hilldegroote)", s)
}

// ParseMuscleStateType accepts the lower-case token or an upper-case alias.
func ParseMuscleStateType(s string) (MuscleStateType, error) {
	t := MuscleStateType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case StateDeGroote, StateBuchanan:
		return t, nil
	}
	return "", fmt.Errorf("invalid muscle state type %q (valid: degroote, buchanan)", s)
}

// Muscle is a line-of-action actuator. Origin and insertion positions are
// expressed in the frames of its group's origin and insertion segments.
type Muscle struct {
	Name              string          `json:"name"`
	Type              MuscleType      `json:"type"`
	StateType         MuscleStateType `json:"state_type"`
	MuscleGroup       string          `json:"muscle_group"`
	OriginPosition    mgl64.Vec3      `json:"origin_position"`
	InsertionPosition mgl64.Vec3      `json:"insertion_position"`
	OptimalLength     float64         `json:"optimal_length"`
	MaximalForce      float64         `json:"maximal_force"`
	TendonSlackLength float64         `json:"tendon_slack_length"`
	PennationAngle    float64         `json:"pennation_angle"`
	MaximalExcitation float64         `json:"maximal_excitation"`
}
