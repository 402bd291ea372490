package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Trial is an in-memory Source.
type Trial struct {
	names     []string
	positions map[string][]mgl64.Vec3
	frames    int
}

// NewTrial returns an empty trial.
func NewTrial() *Trial {
	return &Trial{positions: map[string][]mgl64.Vec3{}}
}

// Add registers a marker trajectory. Every marker of a trial must have the
// same number of frames.
func (t *Trial) Add(name string, positions []mgl64.Vec3) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("marker name is required")
	}
	if _, ok := t.positions[name]; ok {
		return fmt.Errorf("marker %q already in trial", name)
	}
	if len(t.names) > 0 && len(positions) != t.frames {
		return fmt.Errorf("marker %q has %d frames, trial has %d", name, len(positions), t.frames)
	}
	cp := make([]mgl64.Vec3, len(positions))
	copy(cp, positions)
	t.names = append(t.names, name)
	t.positions[name] = cp
	t.frames = len(positions)
	return nil
}

// MarkerPosition implements Source.
func (t *Trial) MarkerPosition(name string, frame int) (mgl64.Vec3, error) {
	ps, ok := t.positions[name]
	if !ok {
		return mgl64.Vec3{}, &NotFoundError{Marker: name}
	}
	if frame < 0 || frame >= len(ps) {
		return mgl64.Vec3{}, fmt.Errorf("%w: marker %q frame %d of %d", ErrFrameOutOfRange, name, frame, len(ps))
	}
	return ps[frame], nil
}

// FrameCount implements Source.
func (t *Trial) FrameCount() int { return t.frames }

// MarkerNames implements Source, in the order markers were added.
func (t *Trial) MarkerNames() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// CSVOptions configures LoadCSV.
type CSVOptions struct {
	// Scale multiplies every coordinate, e.g. 0.001 for millimetre files.
	Scale float64
}

// LoadCSVFile reads a trial from a CSV file.
func LoadCSVFile(path string, opts CSVOptions) (*Trial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := LoadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("load trial %s: %w", path, err)
	}
	return t, nil
}

// LoadCSV reads a trial whose header names marker columns NAME_X, NAME_Y,
// NAME_Z (in that order). A leading "frame" or "time" column is ignored. Empty
// or "nan" cells mark gaps.
func LoadCSV(r io.Reader, opts CSVOptions) (*Trial, error) {
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	skip := 0
	if len(header) > 0 {
		switch strings.ToLower(strings.TrimSpace(header[0])) {
		case "frame", "time":
			skip = 1
		}
	}
	cols := header[skip:]
	if len(cols) == 0 || len(cols)%3 != 0 {
		return nil, fmt.Errorf("header has %d coordinate columns, expected a multiple of 3", len(cols))
	}
	var names []string
	for i := 0; i < len(cols); i += 3 {
		name, err := markerName(cols[i : i+3])
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	series := make([][]mgl64.Vec3, len(names))
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("line %d: %d fields, expected %d", line, len(rec), len(header))
		}
		vals := rec[skip:]
		for m := range names {
			var p mgl64.Vec3
			for a := 0; a < 3; a++ {
				v, err := parseCell(vals[m*3+a])
				if err != nil {
					return nil, fmt.Errorf("line %d column %q: %w", line, cols[m*3+a], err)
				}
				p[a] = v * scale
			}
			series[m] = append(series[m], p)
		}
	}

	t := NewTrial()
	for i, name := range names {
		if err := t.Add(name, series[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func markerName(cols []string) (string, error) {
	var base string
	for i, suffix := range []string{"_x", "_y", "_z"} {
		c := strings.TrimSpace(cols[i])
		if len(c) <= 2 || !strings.EqualFold(c[len(c)-2:], suffix) {
			return "", fmt.Errorf("column %q: expected suffix %s", c, strings.ToUpper(suffix))
		}
		name := c[:len(c)-2]
		if i == 0 {
			base = name
		} else if name != base {
			return "", fmt.Errorf("columns %q do not belong to one marker", cols)
		}
	}
	return base, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
