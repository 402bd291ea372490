package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/biomod"
	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [file.bioMod]",
		Short: "Store a bioMod model in the catalog",
		Long:  "Store a bioMod model as the next version of ns/name. The file can be a positional arg or piped via stdin.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runPut,
	}

	cmd.Flags().StringP("ns", "n", "", "Namespace (required)")
	cmd.Flags().StringP("name", "k", "", "Name (required)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("meta", "", "JSON metadata")

	cmd.MarkFlagRequired("ns")
	cmd.MarkFlagRequired("name")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	name, _ := cmd.Flags().GetString("name")
	tags, _ := cmd.Flags().GetString("tags")
	meta, _ := cmd.Flags().GetString("meta")

	var doc *biomod.Document
	var err error
	if len(args) > 0 {
		doc, err = biomod.ReadFile(args[0])
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			exitErr("put", fmt.Errorf("a bioMod file is required (positional arg or stdin)"))
		}
		doc, err = biomod.Read(os.Stdin)
	}
	if err != nil {
		exitErr("read", err)
	}
	if err := checkMeta(meta); err != nil {
		exitErr("put", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.Put(cmd.Context(), store.PutParams{
		NS:     ns,
		Name:   name,
		Source: doc.Model,
		Header: doc.Header,
		Tags:   splitList(tags),
		Meta:   meta,
	})
	if err != nil {
		exitErr("put", err)
	}
	logger.Debug("stored", "ns", ns, "name", name, "version", rec.Version, "chunks", rec.ChunkCount)

	rec.Model, rec.BioMod = nil, ""
	b, _ := json.Marshal(rec)
	fmt.Println(string(b))
}
