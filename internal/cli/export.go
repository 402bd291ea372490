package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export catalog models as JSON",
		Long:  "Export every live version, with its model payload and bioMod text, as a JSON array. Filter by namespace with -n.",
		Run:   runExport,
	}

	cmd.Flags().StringP("ns", "n", "", "Filter by namespace")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	records, err := s.ExportAll(cmd.Context(), ns)
	if err != nil {
		exitErr("export", err)
	}
	logger.Debug("exported", "records", len(records))

	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}
