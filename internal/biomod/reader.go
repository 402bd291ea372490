package biomod

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/geom"
	"github.com/rcliao/biobuddy/internal/model"
)

// Document is a parsed bioMod file.
type Document struct {
	Version int
	Header  Header
	Model   *model.Model
}

// SyntaxError locates a malformed line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("bioMod line %d: %s", e.Line, e.Msg) }

// ReadFile parses the bioMod file at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses bioMod text. Entities are registered through the model's Add
// methods, so the result satisfies the same invariants as a model built in
// code. Both RTinMatrix forms of RT are accepted.
func Read(r io.Reader) (*Document, error) {
	toks, err := tokenize(r)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, doc: &Document{Model: model.New()}}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

type token struct {
	text string
	line int
}

func tokenize(r io.Reader) ([]token, error) {
	var toks []token
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := sc.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		for _, f := range strings.Fields(text) {
			toks = append(toks, token{text: f, line: n})
		}
	}
	return toks, sc.Err()
}

type parser struct {
	toks []token
	pos  int
	doc  *Document
}

func (p *parser) line() int {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].line
	}
	if len(p.toks) > 0 {
		return p.toks[len(p.toks)-1].line
	}
	return 0
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line(), Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) next() (string, error) {
	if p.done() {
		return "", p.errorf("unexpected end of file")
	}
	t := p.toks[p.pos]
	p.pos++
	return t.text, nil
}

func (p *parser) float() (float64, error) {
	s, err := p.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.pos--
		return 0, p.errorf("expected a number, got %q", s)
	}
	return v, nil
}

func (p *parser) floats(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := p.float()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *parser) vec3() (mgl64.Vec3, error) {
	vs, err := p.floats(3)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return mgl64.Vec3{vs[0], vs[1], vs[2]}, nil
}

func (p *parser) flag() (bool, error) {
	s, err := p.next()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return false, p.errorf("expected 0 or 1, got %q", s)
}

func (p *parser) parse() error {
	key, err := p.next()
	if err != nil || !strings.EqualFold(key, "version") {
		return &SyntaxError{Line: 1, Msg: "file must start with a version line"}
	}
	v, err := p.float()
	if err != nil {
		return err
	}
	p.doc.Version = int(v)

	inBody := false
	for !p.done() {
		line := p.line()
		key, _ := p.next()
		var err error
		switch strings.ToLower(key) {
		case "segment":
			err = p.segment()
		case "marker":
			err = p.marker()
		case "contact":
			err = p.contact()
		case "musclegroup":
			err = p.muscleGroup()
		case "muscle":
			err = p.muscle()
		case "viapoint":
			err = p.viaPoint()
		default:
			if inBody {
				return &SyntaxError{Line: line, Msg: fmt.Sprintf("unknown block %q", key)}
			}
			var vals []string
			for !p.done() && p.toks[p.pos].line == line {
				vals = append(vals, p.toks[p.pos].text)
				p.pos++
			}
			p.doc.Header = append(p.doc.Header, Field{Key: key, Value: strings.Join(vals, " ")})
			continue
		}
		if err != nil {
			return err
		}
		inBody = true
	}
	return nil
}

// fields runs fn for every key of a block until end.
func (p *parser) fields(end string, fn func(key string) error) error {
	for {
		key, err := p.next()
		if err != nil {
			return err
		}
		if strings.EqualFold(key, end) {
			return nil
		}
		if err := fn(strings.ToLower(key)); err != nil {
			return err
		}
	}
}

func rootName(s string) string {
	if strings.EqualFold(s, model.RootAlias) {
		return model.Root
	}
	return s
}

func (p *parser) segment() error {
	name, err := p.next()
	if err != nil {
		return err
	}
	seg := model.NewSegment(name)
	inMatrix := false
	err = p.fields("endsegment", func(key string) error {
		var err error
		switch key {
		case "parent":
			var s string
			s, err = p.next()
			seg.ParentName = rootName(s)
		case "rtinmatrix":
			inMatrix, err = p.flag()
		case "rt":
			seg.CoordinateSystem, err = p.rt(inMatrix)
		case "translations":
			var s string
			s, err = p.next()
			seg.Translations = model.Translations(strings.ToLower(s))
		case "rotations":
			var s string
			s, err = p.next()
			seg.Rotations = model.Rotations(strings.ToLower(s))
		case "rangesq", "rangesqdot":
			rg := &model.RangeOfMotion{Type: model.RangeQ}
			if key == "rangesqdot" {
				rg.Type = model.RangeQdot
			}
			for i := 0; i < seg.DOFCount(); i++ {
				var b []float64
				if b, err = p.floats(2); err != nil {
					return err
				}
				rg.Min = append(rg.Min, b[0])
				rg.Max = append(rg.Max, b[1])
			}
			if rg.Type == model.RangeQ {
				seg.QRanges = rg
			} else {
				seg.QDotRanges = rg
			}
		case "mass":
			in := inertia(&seg)
			in.Mass, err = p.float()
		case "centerofmass", "com":
			in := inertia(&seg)
			in.CenterOfMass, err = p.vec3()
		case "inertia":
			var vs []float64
			if vs, err = p.floats(9); err == nil {
				inertia(&seg).Inertia = mgl64.Mat3FromRows(
					mgl64.Vec3{vs[0], vs[1], vs[2]},
					mgl64.Vec3{vs[3], vs[4], vs[5]},
					mgl64.Vec3{vs[6], vs[7], vs[8]},
				)
			}
		case "mesh":
			var pt mgl64.Vec3
			if pt, err = p.vec3(); err == nil {
				if seg.Mesh == nil {
					seg.Mesh = &model.Mesh{}
				}
				seg.Mesh.Points = append(seg.Mesh.Points, pt)
			}
		case "meshfile":
			var path string
			if path, err = p.next(); err == nil {
				mf := meshFile(&seg)
				mf.Path = path
			}
		case "meshcolor":
			meshFile(&seg).Color, err = p.vec3()
		case "meshscale":
			meshFile(&seg).Scaling, err = p.vec3()
		case "meshrt":
			mf := meshFile(&seg)
			if mf.Rotation, err = p.vec3(); err != nil {
				return err
			}
			var seq string
			if seq, err = p.next(); err != nil {
				return err
			}
			if !strings.EqualFold(seq, "xyz") {
				return p.errorf("meshrt sequence %q is not supported", seq)
			}
			mf.Translation, err = p.vec3()
		default:
			return p.errorf("unknown segment field %q", key)
		}
		return err
	})
	if err != nil {
		return err
	}
	if seg.MeshFile != nil && seg.MeshFile.Path == "" {
		return p.errorf("segment %q: mesh options without meshfile", name)
	}
	_, err = p.doc.Model.AddSegment(seg)
	return err
}

func inertia(s *model.Segment) *model.InertiaParameters {
	if s.Inertia == nil {
		s.Inertia = &model.InertiaParameters{}
	}
	return s.Inertia
}

func meshFile(s *model.Segment) *model.MeshFile {
	if s.MeshFile == nil {
		s.MeshFile = model.NewMeshFile("")
	}
	return s.MeshFile
}

// rt reads a 4x4 row-major matrix, or Euler angles, a sequence and a
// translation.
func (p *parser) rt(inMatrix bool) (mgl64.Mat4, error) {
	if inMatrix {
		vs, err := p.floats(16)
		if err != nil {
			return mgl64.Mat4{}, err
		}
		var m mgl64.Mat4
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				m.Set(r, c, vs[r*4+c])
			}
		}
		return m, nil
	}
	angles, err := p.floats(3)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	seq, err := p.next()
	if err != nil {
		return mgl64.Mat4{}, err
	}
	tr, err := p.vec3()
	if err != nil {
		return mgl64.Mat4{}, err
	}
	m, err := geom.FromEulerAndTranslation(angles, strings.ToLower(seq), tr)
	if err != nil {
		return mgl64.Mat4{}, p.errorf("%v", err)
	}
	return m, nil
}

func (p *parser) attachmentParent(kind, name, parent string) (*model.Segment, error) {
	if parent == "" {
		return nil, p.errorf("%s %q has no parent", kind, name)
	}
	s, ok := p.doc.Model.Segment(parent)
	if !ok {
		return nil, model.NewError(model.ErrDanglingReference, kind+" "+strconv.Quote(name), "segment %q is not defined before it", parent)
	}
	return s, nil
}

func (p *parser) marker() error {
	name, err := p.next()
	if err != nil {
		return err
	}
	mk := model.Marker{Name: name, IsTechnical: true}
	err = p.fields("endmarker", func(key string) error {
		var err error
		switch key {
		case "parent":
			mk.ParentName, err = p.next()
		case "position":
			mk.Position, err = p.vec3()
		case "technical":
			mk.IsTechnical, err = p.flag()
		case "anatomical":
			mk.IsAnatomical, err = p.flag()
		default:
			return p.errorf("unknown marker field %q", key)
		}
		return err
	})
	if err != nil {
		return err
	}
	s, err := p.attachmentParent("marker", name, mk.ParentName)
	if err != nil {
		return err
	}
	return s.AddMarker(mk)
}

func (p *parser) contact() error {
	name, err := p.next()
	if err != nil {
		return err
	}
	c := model.Contact{Name: name}
	err = p.fields("endcontact", func(key string) error {
		var err error
		switch key {
		case "parent":
			c.ParentName, err = p.next()
		case "position":
			c.Position, err = p.vec3()
		case "axis":
			var s string
			s, err = p.next()
			c.Axis = model.Translations(strings.ToLower(s))
		default:
			return p.errorf("unknown contact field %q", key)
		}
		return err
	})
	if err != nil {
		return err
	}
	s, err := p.attachmentParent("contact", name, c.ParentName)
	if err != nil {
		return err
	}
	return s.AddContact(c)
}

func (p *parser) muscleGroup() error {
	name, err := p.next()
	if err != nil {
		return err
	}
	g := model.MuscleGroup{Name: name}
	err = p.fields("endmusclegroup", func(key string) error {
		var err error
		switch key {
		case "originparent":
			g.OriginParentName, err = p.next()
		case "insertionparent":
			g.InsertionParentName, err = p.next()
		default:
			return p.errorf("unknown muscle group field %q", key)
		}
		return err
	})
	if err != nil {
		return err
	}
	return p.doc.Model.AddMuscleGroup(g)
}

func (p *parser) muscle() error {
	name, err := p.next()
	if err != nil {
		return err
	}
	mu := model.Muscle{Name: name, MaximalExcitation: model.DefaultMaximalExcitation}
	err = p.fields("endmuscle", func(key string) error {
		var err error
		var s string
		switch key {
		case "type":
			if s, err = p.next(); err == nil {
				mu.Type, err = model.ParseMuscleType(s)
			}
		case "statetype":
			if s, err = p.next(); err == nil {
				mu.StateType, err = model.ParseMuscleStateType(s)
			}
		case "musclegroup":
			mu.MuscleGroup, err = p.next()
		case "originposition":
			mu.OriginPosition, err = p.vec3()
		case "insertionposition":
			mu.InsertionPosition, err = p.vec3()
		case "optimallength":
			mu.OptimalLength, err = p.float()
		case "maximalforce":
			mu.MaximalForce, err = p.float()
		case "tendonslacklength":
			mu.TendonSlackLength, err = p.float()
		case "pennationangle":
			mu.PennationAngle, err = p.float()
		case "maxexcitation":
			mu.MaximalExcitation, err = p.float()
		default:
			return p.errorf("unknown muscle field %q", key)
		}
		return err
	})
	if err != nil {
		return err
	}
	return p.doc.Model.AddMuscle(mu)
}

func (p *parser) viaPoint() error {
	name, err := p.next()
	if err != nil {
		return err
	}
	v := model.ViaPoint{Name: name}
	err = p.fields("endviapoint", func(key string) error {
		var err error
		switch key {
		case "parent":
			v.ParentName, err = p.next()
		case "muscle":
			v.MuscleName, err = p.next()
		case "musclegroup":
			v.MuscleGroup, err = p.next()
		case "position":
			v.Position, err = p.vec3()
		default:
			return p.errorf("unknown via point field %q", key)
		}
		return err
	})
	if err != nil {
		return err
	}
	return p.doc.Model.AddViaPoint(v)
}
