// Package biomod reads and writes the line-oriented bioMod model format.
package biomod

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rcliao/biobuddy/internal/model"
)

// Version is the format version written in the first line.
const Version = 4

// Field is an extra header line written after the version.
type Field struct {
	Key   string
	Value string
}

// Header holds extra header lines in the order they are written.
type Header []Field

// Source is anything that can produce a fully numeric model. Template models
// that still hold computed fields fail with model.ErrUnresolvedEntity.
type Source interface {
	Real() (*model.Model, error)
}

// Write renders src to w. Nothing reaches w unless the whole model renders.
func Write(w io.Writer, src Source, header Header) error {
	b, err := Render(src, header)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteFile renders src and replaces path atomically. On any error the file
// at path is left as it was.
func WriteFile(path string, src Source, header Header) error {
	b, err := Render(src, header)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Render returns the bioMod text of src.
func Render(src Source, header Header) ([]byte, error) {
	m, err := src.Real()
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := &writer{b: bufio.NewWriter(&buf)}
	if err := w.model(m, header); err != nil {
		return nil, err
	}
	if err := w.b.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var blockKeywords = map[string]bool{
	"version": true, "segment": true, "marker": true, "contact": true,
	"musclegroup": true, "muscle": true, "viapoint": true,
}

type writer struct {
	b *bufio.Writer
}

func (w *writer) line(indent int, parts ...string) {
	w.b.WriteString(strings.Repeat("\t", indent))
	w.b.WriteString(strings.Join(parts, "\t"))
	w.b.WriteByte('\n')
}

func (w *writer) section(title string) {
	w.line(0, "// "+strings.Repeat("-", 60))
	w.line(0, "// "+title)
	w.line(0, "// "+strings.Repeat("-", 60))
	w.line(0)
}

func (w *writer) model(m *model.Model, header Header) error {
	w.line(0, "version", strconv.Itoa(Version))
	for _, f := range header {
		if f.Key == "" || strings.ContainsAny(f.Key, " \t\r\n/") || strings.ContainsAny(f.Value, "\r\n") || strings.Contains(f.Value, "//") || blockKeywords[strings.ToLower(f.Key)] {
			return fmt.Errorf("%w: header field %q", model.ErrInvalidDefinition, f.Key)
		}
		w.line(0, f.Key, f.Value)
	}
	w.line(0)

	if len(m.Segments()) > 0 {
		w.section("SEGMENTS")
	}
	emitted := map[string]bool{}
	for _, s := range m.Segments() {
		if !model.IsRoot(s.ParentName) && !emitted[s.ParentName] {
			return model.NewError(model.ErrDanglingReference, model.SegmentEntity(s.Name), "parent %q is not written before it", s.ParentName)
		}
		if err := w.segment(s); err != nil {
			return err
		}
		emitted[s.Name] = true
	}

	if len(m.MuscleGroups()) > 0 {
		w.section("MUSCLE GROUPS")
	}
	for _, g := range m.MuscleGroups() {
		for _, parent := range []string{g.OriginParentName, g.InsertionParentName} {
			if !emitted[parent] {
				return model.NewError(model.ErrDanglingReference, model.MuscleGroupEntity(g.Name), "segment %q is not written", parent)
			}
		}
		w.line(0, "musclegroup", g.Name)
		w.line(1, "OriginParent", g.OriginParentName)
		w.line(1, "InsertionParent", g.InsertionParentName)
		w.line(0, "endmusclegroup")
		w.line(0)
	}

	if len(m.Muscles()) > 0 {
		w.section("MUSCLES")
	}
	for _, mu := range m.Muscles() {
		if _, ok := m.MuscleGroup(mu.MuscleGroup); !ok {
			return model.NewError(model.ErrDanglingReference, model.MuscleEntity(mu.Name), "muscle group %q is not registered", mu.MuscleGroup)
		}
		w.muscle(mu)
		for _, v := range m.ViaPointsOf(mu.Name) {
			if !emitted[v.ParentName] {
				return model.NewError(model.ErrDanglingReference, model.ViaPointEntity(v.Name), "segment %q is not written", v.ParentName)
			}
			w.viaPoint(v)
		}
	}
	if n := len(m.ViaPoints()); n > 0 {
		written := 0
		for _, mu := range m.Muscles() {
			written += len(m.ViaPointsOf(mu.Name))
		}
		if written != n {
			return model.NewError(model.ErrDanglingReference, "", "%d via points reference unregistered muscles", n-written)
		}
	}
	return nil
}

func (w *writer) segment(s *model.Segment) error {
	entity := model.SegmentEntity(s.Name)
	w.line(0, "segment", s.Name)
	if !model.IsRoot(s.ParentName) {
		w.line(1, "parent", s.ParentName)
	}
	w.line(1, "RTinMatrix", "1")
	w.line(1, "RT")
	for r := 0; r < 4; r++ {
		row := s.CoordinateSystem.Row(r)
		w.line(2, floats(row[:]...)...)
	}
	if s.Translations != model.TransNone {
		w.line(1, "translations", string(s.Translations))
	}
	if s.Rotations != model.RotNone {
		w.line(1, "rotations", string(s.Rotations))
	}
	for _, rg := range []*model.RangeOfMotion{s.QRanges, s.QDotRanges} {
		if rg == nil {
			continue
		}
		if len(rg.Min) != s.DOFCount() || len(rg.Max) != s.DOFCount() {
			return model.NewError(model.ErrInvalidDefinition, entity, "%s range does not match %d DOF", rg.Type, s.DOFCount())
		}
		key := "rangesQ"
		if rg.Type == model.RangeQdot {
			key = "rangesQdot"
		}
		w.line(1, key)
		for i := range rg.Min {
			w.line(2, floats(rg.Min[i], rg.Max[i])...)
		}
	}
	if in := s.Inertia; in != nil {
		w.line(1, "mass", num(in.Mass))
		w.line(1, append([]string{"CenterOfMass"}, floats(in.CenterOfMass[:]...)...)...)
		w.line(1, "inertia")
		for r := 0; r < 3; r++ {
			row := in.Inertia.Row(r)
			w.line(2, floats(row[:]...)...)
		}
	}
	if s.Mesh != nil {
		for _, p := range s.Mesh.Points {
			w.line(1, append([]string{"mesh"}, floats(p[:]...)...)...)
		}
	}
	if mf := s.MeshFile; mf != nil {
		w.line(1, "meshfile", mf.Path)
		w.line(1, append([]string{"meshcolor"}, floats(mf.Color[:]...)...)...)
		w.line(1, append([]string{"meshscale"}, floats(mf.Scaling[:]...)...)...)
		rt := append([]string{"meshrt"}, floats(mf.Rotation[:]...)...)
		rt = append(rt, "xyz")
		w.line(1, append(rt, floats(mf.Translation[:]...)...)...)
	}
	w.line(0, "endsegment")
	w.line(0)

	for _, mk := range s.Markers {
		if mk.ParentName != s.Name {
			return model.NewError(model.ErrDanglingReference, model.MarkerEntity(mk.Name), "parent %q does not match owning segment %q", mk.ParentName, s.Name)
		}
		w.line(1, "marker", mk.Name)
		w.line(2, "parent", mk.ParentName)
		w.line(2, append([]string{"position"}, floats(mk.Position[:]...)...)...)
		w.line(2, "technical", boolFlag(mk.IsTechnical))
		w.line(2, "anatomical", boolFlag(mk.IsAnatomical))
		w.line(1, "endmarker")
		w.line(0)
	}
	for _, c := range s.Contacts {
		if c.ParentName != s.Name {
			return model.NewError(model.ErrDanglingReference, model.ContactEntity(c.Name), "parent %q does not match owning segment %q", c.ParentName, s.Name)
		}
		w.line(1, "contact", c.Name)
		w.line(2, "parent", c.ParentName)
		w.line(2, append([]string{"position"}, floats(c.Position[:]...)...)...)
		w.line(2, "axis", string(c.Axis))
		w.line(1, "endcontact")
		w.line(0)
	}
	return nil
}

func (w *writer) muscle(mu *model.Muscle) {
	w.line(0, "muscle", mu.Name)
	w.line(1, "type", string(mu.Type))
	if mu.StateType != "" {
		w.line(1, "statetype", string(mu.StateType))
	}
	w.line(1, "musclegroup", mu.MuscleGroup)
	w.line(1, append([]string{"OriginPosition"}, floats(mu.OriginPosition[:]...)...)...)
	w.line(1, append([]string{"InsertionPosition"}, floats(mu.InsertionPosition[:]...)...)...)
	w.line(1, "optimalLength", num(mu.OptimalLength))
	w.line(1, "maximalForce", num(mu.MaximalForce))
	w.line(1, "tendonSlackLength", num(mu.TendonSlackLength))
	w.line(1, "pennationAngle", num(mu.PennationAngle))
	w.line(1, "maxExcitation", num(mu.MaximalExcitation))
	w.line(0, "endmuscle")
	w.line(0)
}

func (w *writer) viaPoint(v *model.ViaPoint) {
	w.line(1, "viapoint", v.Name)
	w.line(2, "parent", v.ParentName)
	w.line(2, "muscle", v.MuscleName)
	w.line(2, "musclegroup", v.MuscleGroup)
	w.line(2, append([]string{"position"}, floats(v.Position[:]...)...)...)
	w.line(1, "endviapoint")
	w.line(0)
}

// num formats v with the fewest digits that read back exactly.
func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func floats(vs ...float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = num(v)
	}
	return out
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
