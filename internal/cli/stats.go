package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/model"
	"github.com/rcliao/biobuddy/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics with per-namespace model totals",
		Run:   runStats,
	}

	cmd.Flags().StringP("ns", "n", "", "Only report this namespace")
	cmd.Flags().Bool("models", false, "Include the latest version of every model, largest first")

	RootCmd.AddCommand(cmd)
}

type modelStats struct {
	NS       string `json:"ns"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Segments int    `json:"segments"`
	Muscles  int    `json:"muscles"`
	DOF      int    `json:"dof"`
	Chunks   int    `json:"chunks"`
}

type statsResult struct {
	*store.Stats
	Models []modelStats `json:"models,omitempty"`
}

// statsView narrows st to ns (when set) and attaches the model rows, sorted
// by DOF then name.
func statsView(st *store.Stats, records []model.Record, ns string) statsResult {
	if ns != "" {
		var kept []store.NamespaceStats
		for _, n := range st.Namespaces {
			if n.NS == ns {
				kept = append(kept, n)
			}
		}
		st.Namespaces = kept
	}
	out := statsResult{Stats: st}
	for _, r := range records {
		if ns != "" && r.NS != ns {
			continue
		}
		out.Models = append(out.Models, modelStats{
			NS: r.NS, Name: r.Name, Version: r.Version,
			Segments: r.Segments, Muscles: r.Muscles, DOF: r.DOF, Chunks: r.ChunkCount,
		})
	}
	sort.SliceStable(out.Models, func(i, j int) bool {
		a, b := out.Models[i], out.Models[j]
		if a.DOF != b.DOF {
			return a.DOF > b.DOF
		}
		if a.NS != b.NS {
			return a.NS < b.NS
		}
		return a.Name < b.Name
	})
	return out
}

func runStats(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	withModels, _ := cmd.Flags().GetBool("models")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), getDBPath())
	if err != nil {
		exitErr("stats", err)
	}

	var records []model.Record
	if withModels {
		limit := stats.ActiveRecords
		if limit == 0 {
			limit = 1
		}
		records, err = s.List(cmd.Context(), store.ListParams{NS: ns, Limit: limit})
		if err != nil {
			exitErr("list models", err)
		}
	}
	logger.Debug("catalog stats", "records", stats.TotalRecords, "namespaces", len(stats.Namespaces))

	b, _ := json.MarshalIndent(statsView(stats, records, ns), "", "  ")
	fmt.Println(string(b))
}
