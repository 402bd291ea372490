package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create or remove relations between catalog models",
		Run:   runLink,
	}

	cmd.Flags().String("from-ns", "", "Source namespace")
	cmd.Flags().String("from-name", "", "Source name")
	cmd.Flags().String("to-ns", "", "Target namespace")
	cmd.Flags().String("to-name", "", "Target name")
	cmd.Flags().StringP("rel", "r", "", "Relation: derived_from, variant_of, refines, depends_on")
	cmd.Flags().Bool("rm", false, "Remove the link")

	cmd.MarkFlagRequired("from-ns")
	cmd.MarkFlagRequired("from-name")
	cmd.MarkFlagRequired("to-ns")
	cmd.MarkFlagRequired("to-name")
	cmd.MarkFlagRequired("rel")

	RootCmd.AddCommand(cmd)
}

func runLink(cmd *cobra.Command, args []string) {
	fromNS, _ := cmd.Flags().GetString("from-ns")
	fromName, _ := cmd.Flags().GetString("from-name")
	toNS, _ := cmd.Flags().GetString("to-ns")
	toName, _ := cmd.Flags().GetString("to-name")
	rel, _ := cmd.Flags().GetString("rel")
	rm, _ := cmd.Flags().GetBool("rm")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	link, err := s.Link(cmd.Context(), store.LinkParams{
		FromNS:   fromNS,
		FromName: fromName,
		ToNS:     toNS,
		ToName:   toName,
		Rel:      rel,
		Remove:   rm,
	})
	if err != nil {
		exitErr("link", err)
	}

	b, _ := json.MarshalIndent(link, "", "  ")
	fmt.Println(string(b))
}
