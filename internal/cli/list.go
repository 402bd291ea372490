package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models",
		Run:   runList,
	}

	cmd.Flags().StringP("ns", "n", "", "Filter by namespace")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated)")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("names-only", false, "Only output ns/name pairs")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	tags, _ := cmd.Flags().GetString("tags")
	limit, _ := cmd.Flags().GetInt("limit")
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	records, err := s.List(cmd.Context(), store.ListParams{
		NS:    ns,
		Tags:  splitList(tags),
		Limit: limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if namesOnly {
		for _, r := range records {
			fmt.Printf("%s/%s\n", r.NS, r.Name)
		}
		return
	}

	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}
