package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/data"
	"github.com/rcliao/biobuddy/internal/definition"
	"github.com/rcliao/biobuddy/internal/generic"
	"github.com/rcliao/biobuddy/internal/model"
	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "build [definition.yaml]",
		Short: "Build a bioMod model from a definition and marker data",
		Long: "Resolve a YAML model definition against a marker CSV and write the result as bioMod. " +
			"Without --markers the definition must not reference any data. " +
			"With --ns and --name the model is also stored in the catalog.",
		Args: cobra.ExactArgs(1),
		Run:  runBuild,
	}

	cmd.Flags().StringP("markers", "m", "", "Marker CSV (NAME_X, NAME_Y, NAME_Z columns)")
	cmd.Flags().Float64("scale", 1, "Factor applied to marker coordinates, e.g. 0.001 for millimetres")
	cmd.Flags().StringP("output", "o", "", "bioMod file to write")
	cmd.Flags().StringP("ns", "n", "", "Catalog namespace")
	cmd.Flags().StringP("name", "k", "", "Catalog name")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags for the catalog record")
	cmd.Flags().String("meta", "", "JSON metadata for the catalog record")

	RootCmd.AddCommand(cmd)
}

type buildResult struct {
	OK       bool          `json:"ok"`
	Output   string        `json:"output,omitempty"`
	Segments int           `json:"segments"`
	Muscles  int           `json:"muscles"`
	DOF      int           `json:"dof"`
	Record   *model.Record `json:"record,omitempty"`
}

func runBuild(cmd *cobra.Command, args []string) {
	markers, _ := cmd.Flags().GetString("markers")
	scale, _ := cmd.Flags().GetFloat64("scale")
	output, _ := cmd.Flags().GetString("output")
	ns, _ := cmd.Flags().GetString("ns")
	name, _ := cmd.Flags().GetString("name")
	tags, _ := cmd.Flags().GetString("tags")
	meta, _ := cmd.Flags().GetString("meta")

	if output == "" && (ns == "" || name == "") {
		exitErr("build", fmt.Errorf("nothing to do: give --output, or --ns and --name"))
	}
	if err := checkMeta(meta); err != nil {
		exitErr("build", err)
	}

	def, err := definition.LoadFile(args[0])
	if err != nil {
		exitErr("load definition", err)
	}
	g, err := def.Generic()
	if err != nil {
		exitErr("build generic model", err)
	}
	logger.Debug("definition loaded", "path", args[0], "segments", len(g.Segments()), "muscles", len(g.Muscles()))

	var m *model.Model
	if markers != "" {
		trial, err := data.LoadCSVFile(markers, data.CSVOptions{Scale: scale})
		if err != nil {
			exitErr("load markers", err)
		}
		logger.Debug("markers loaded", "path", markers, "markers", len(trial.MarkerNames()), "frames", trial.FrameCount())
		m, err = generic.Resolve(g, trial)
		if err != nil {
			exitErr("resolve", err)
		}
	} else {
		m, err = g.Real()
		if err != nil {
			exitErr("resolve", fmt.Errorf("%w (pass --markers)", err))
		}
	}
	logger.Info("model resolved", "model", m.String())

	res := buildResult{OK: true, Output: output, Segments: len(m.Segments()), Muscles: len(m.Muscles()), DOF: m.DOFCount()}
	if output != "" {
		if err := biomod.WriteFile(output, m, def.BiomodHeader()); err != nil {
			exitErr("write", err)
		}
		logger.Debug("bioMod written", "path", output)
	}

	if ns != "" && name != "" {
		s, err := openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		rec, err := s.Put(cmd.Context(), store.PutParams{
			NS:     ns,
			Name:   name,
			Source: m,
			Header: def.BiomodHeader(),
			Tags:   splitList(tags),
			Meta:   meta,
		})
		if err != nil {
			exitErr("put", err)
		}
		rec.Model, rec.BioMod = nil, ""
		res.Record = rec
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
