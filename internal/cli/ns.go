package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	nsCmd := &cobra.Command{
		Use:   "ns",
		Short: "Catalog namespace management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List namespaces with live models",
		Run:   runNSList,
	}
	listCmd.Flags().Bool("names-only", false, "Only output namespace names")

	nsCmd.AddCommand(listCmd)
	RootCmd.AddCommand(nsCmd)
}

func runNSList(cmd *cobra.Command, args []string) {
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	namespaces, err := s.ListNamespaces(cmd.Context())
	if err != nil {
		exitErr("list namespaces", err)
	}

	if namesOnly {
		for _, ns := range namespaces {
			fmt.Println(ns.NS)
		}
		return
	}

	b, _ := json.MarshalIndent(namespaces, "", "  ")
	fmt.Println(string(b))
}
