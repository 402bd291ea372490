package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/definition"
	"github.com/rcliao/biobuddy/internal/generic"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a bioMod file or a YAML definition",
		Long: "Parse and check a .bioMod file, or load a YAML definition and build its generic model. " +
			"With --markers a definition is also resolved against the data.",
		Args: cobra.ExactArgs(1),
		Run:  runValidate,
	}

	cmd.Flags().StringP("markers", "m", "", "Marker CSV to resolve a definition against")
	cmd.Flags().Float64("scale", 1, "Factor applied to marker coordinates")

	RootCmd.AddCommand(cmd)
}

type validateResult struct {
	OK           bool   `json:"ok"`
	Kind         string `json:"kind"`
	Segments     int    `json:"segments"`
	MuscleGroups int    `json:"muscle_groups"`
	Muscles      int    `json:"muscles"`
	ViaPoints    int    `json:"via_points"`
	DOF          int    `json:"dof,omitempty"`
	Resolved     bool   `json:"resolved"`
}

func runValidate(cmd *cobra.Command, args []string) {
	markers, _ := cmd.Flags().GetString("markers")
	scale, _ := cmd.Flags().GetFloat64("scale")
	path := args[0]

	var res validateResult
	if strings.EqualFold(filepath.Ext(path), ".biomod") {
		doc, err := biomod.ReadFile(path)
		if err != nil {
			exitErr("read", err)
		}
		if err := doc.Model.Validate(); err != nil {
			exitErr("validate", err)
		}
		m := doc.Model
		res = validateResult{
			Kind: "biomod", Segments: len(m.Segments()), MuscleGroups: len(m.MuscleGroups()),
			Muscles: len(m.Muscles()), ViaPoints: len(m.ViaPoints()), DOF: m.DOFCount(), Resolved: true,
		}
	} else {
		def, err := definition.LoadFile(path)
		if err != nil {
			exitErr("load definition", err)
		}
		g, err := def.Generic()
		if err != nil {
			exitErr("build generic model", err)
		}
		res = validateResult{
			Kind: "definition", Segments: len(g.Segments()), MuscleGroups: len(g.MuscleGroups()),
			Muscles: len(g.Muscles()), ViaPoints: len(g.ViaPoints()),
		}
		if markers != "" {
			trial, err := data.LoadCSVFile(markers, data.CSVOptions{Scale: scale})
			if err != nil {
				exitErr("load markers", err)
			}
			m, err := generic.Resolve(g, trial)
			if err != nil {
				exitErr("resolve", err)
			}
			res.DOF = m.DOFCount()
			res.Resolved = true
		}
	}
	res.OK = true

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
