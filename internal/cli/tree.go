package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/model"
	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tree [file.bioMod]",
		Short: "Print the segment tree of a model",
		Long:  "Print the segment tree of a bioMod file, or of a catalog record with --ns and --name.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runTree,
	}

	cmd.Flags().StringP("ns", "n", "", "Catalog namespace")
	cmd.Flags().StringP("name", "k", "", "Catalog name")
	cmd.Flags().Bool("global", false, "Print marker positions in the global frame")

	RootCmd.AddCommand(cmd)
}

func runTree(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	name, _ := cmd.Flags().GetString("name")
	global, _ := cmd.Flags().GetBool("global")

	var m *model.Model
	switch {
	case len(args) == 1:
		doc, err := biomod.ReadFile(args[0])
		if err != nil {
			exitErr("read", err)
		}
		m = doc.Model
	case ns != "" && name != "":
		s, err := openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		recs, err := s.Get(cmd.Context(), store.GetParams{NS: ns, Name: name})
		if err != nil {
			exitErr("get", err)
		}
		m, err = recs[0].Decode()
		if err != nil {
			exitErr("decode", err)
		}
	default:
		exitErr("tree", fmt.Errorf("give a bioMod file, or --ns and --name"))
	}

	if err := writeTree(os.Stdout, m, global); err != nil {
		exitErr("tree", err)
	}
}

// writeTree prints one line per segment, indented under its parent, with its
// DOF and attached markers and contacts.
func writeTree(w io.Writer, m *model.Model, global bool) error {
	children := map[string][]*model.Segment{}
	for _, s := range m.Segments() {
		children[s.ParentName] = append(children[s.ParentName], s)
	}

	fmt.Fprintln(w, model.Root)
	var walk func(parent string, depth int) error
	walk = func(parent string, depth int) error {
		for _, s := range children[parent] {
			indent := strings.Repeat("  ", depth)
			fmt.Fprintf(w, "%s%s%s\n", indent, s.Name, dofLabel(s))
			for _, mk := range s.Markers {
				p := mk.Position
				if global {
					var err error
					if p, err = m.MarkerGlobalPosition(s.Name, mk.Name); err != nil {
						return err
					}
				}
				fmt.Fprintf(w, "%s  * %s (%.4g, %.4g, %.4g)\n", indent, mk.Name, p[0], p[1], p[2])
			}
			for _, c := range s.Contacts {
				fmt.Fprintf(w, "%s  + %s [%s]\n", indent, c.Name, c.Axis)
			}
			if err := walk(s.Name, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(model.Root, 1)
}

func dofLabel(s *model.Segment) string {
	var parts []string
	if s.Translations != "" {
		parts = append(parts, "T:"+string(s.Translations))
	}
	if s.Rotations != "" {
		parts = append(parts, "R:"+string(s.Rotations))
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " ") + "]"
}
