package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/rcliao/biobuddy/internal/model"
)

func TestWriteTree(t *testing.T) {
	m := model.New()
	pelvis := model.NewSegment("PELVIS")
	pelvis.Translations = model.TransXYZ
	pelvis.Rotations = model.RotXYZ
	pelvis.CoordinateSystem = mgl64.Translate3D(0, 0, 1)
	if _, err := m.AddSegment(pelvis); err != nil {
		t.Fatal(err)
	}
	thigh := model.NewSegment("THIGH")
	thigh.ParentName = "PELVIS"
	thigh.Rotations = model.RotX
	seg, err := m.AddSegment(thigh)
	if err != nil {
		t.Fatal(err)
	}
	if err := seg.AddMarker(model.Marker{Name: "KNEE", Position: mgl64.Vec3{0, 0, -0.4}}); err != nil {
		t.Fatal(err)
	}
	if err := seg.AddContact(model.Contact{Name: "HEEL", Axis: model.TransZ}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeTree(&buf, m, false); err != nil {
		t.Fatal(err)
	}
	want := "base\n" +
		"  PELVIS [T:xyz R:xyz]\n" +
		"    THIGH [R:x]\n" +
		"      * KNEE (0, 0, -0.4)\n" +
		"      + HEEL [z]\n"
	if buf.String() != want {
		t.Errorf("expected\n%s\ngot\n%s", want, buf.String())
	}

	buf.Reset()
	if err := writeTree(&buf, m, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "* KNEE (0, 0, 0.6)") {
		t.Errorf("expected global KNEE at z=0.6, got\n%s", buf.String())
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" static, subject-01,,  ")
	if len(got) != 2 || got[0] != "static" || got[1] != "subject-01" {
		t.Errorf("expected [static subject-01], got %v", got)
	}
	if got := splitList(""); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestCheckMeta(t *testing.T) {
	for _, ok := range []string{"", `{"subject": 3}`, `[1, 2]`} {
		if err := checkMeta(ok); err != nil {
			t.Errorf("%q: unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"{subject: 3", "subject=3"} {
		if err := checkMeta(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}
