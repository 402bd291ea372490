package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Retrieve a model from the catalog",
		Run:   runGet,
	}

	cmd.Flags().StringP("ns", "n", "", "Namespace (required)")
	cmd.Flags().StringP("name", "k", "", "Name (required)")
	cmd.Flags().Bool("history", false, "Return all versions (newest first)")
	cmd.Flags().IntP("version", "v", 0, "Specific version number")
	cmd.Flags().Bool("biomod", false, "Print only the bioMod text")
	cmd.Flags().Bool("links", false, "Include links of the returned version")

	cmd.MarkFlagRequired("ns")
	cmd.MarkFlagRequired("name")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	name, _ := cmd.Flags().GetString("name")
	history, _ := cmd.Flags().GetBool("history")
	version, _ := cmd.Flags().GetInt("version")
	rawBiomod, _ := cmd.Flags().GetBool("biomod")
	withLinks, _ := cmd.Flags().GetBool("links")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	records, err := s.Get(cmd.Context(), store.GetParams{
		NS:      ns,
		Name:    name,
		History: history,
		Version: version,
	})
	if err != nil {
		exitErr("get", err)
	}

	if rawBiomod {
		fmt.Print(records[0].BioMod)
		return
	}

	if history || len(records) > 1 {
		b, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(b))
		return
	}

	if !withLinks {
		b, _ := json.MarshalIndent(records[0], "", "  ")
		fmt.Println(string(b))
		return
	}
	links, err := s.GetLinks(cmd.Context(), records[0].ID)
	if err != nil {
		exitErr("get links", err)
	}
	b, _ := json.MarshalIndent(struct {
		Record any          `json:"record"`
		Links  []store.Link `json:"links"`
	}{records[0], links}, "", "  ")
	fmt.Println(string(b))
}
