package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a catalog model",
		Run:   runRm,
	}

	cmd.Flags().StringP("ns", "n", "", "Namespace (required)")
	cmd.Flags().StringP("name", "k", "", "Name (required)")
	cmd.Flags().Bool("all-versions", false, "Delete all versions")
	cmd.Flags().Bool("hard", false, "Permanent delete, including chunks and links (irreversible)")

	cmd.MarkFlagRequired("ns")
	cmd.MarkFlagRequired("name")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	name, _ := cmd.Flags().GetString("name")
	allVersions, _ := cmd.Flags().GetBool("all-versions")
	hard, _ := cmd.Flags().GetBool("hard")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = s.Rm(cmd.Context(), store.RmParams{
		NS:          ns,
		Name:        name,
		AllVersions: allVersions,
		Hard:        hard,
	})
	if err != nil {
		exitErr("rm", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"ns":%q,"name":%q}`+"\n", ns, name)
}
