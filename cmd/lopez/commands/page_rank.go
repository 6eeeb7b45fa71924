package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lopezcrawl/lopez/pkg/lopez"
)

var pageRankCmd = &cobra.Command{
	Use:   "page-rank",
	Short: "Compute PageRank over an already-crawled wave's ahref linkage graph",
	Long: `page-rank runs the §3/§12 post-crawl batch job: it streams a
wave's ahref linkage edges, computes PageRank by power iteration, and
commits the result back to the backend.`,
	RunE: runPageRank,
}

func init() {
	rootCmd.AddCommand(pageRankCmd)
	addBackendFlags(pageRankCmd)
	pageRankCmd.Flags().StringP("wave", "w", "default", "wave name")
	pageRankCmd.Flags().Int("top", 20, "print only the top N ranked pages (0 = all)")
}

func runPageRank(cmd *cobra.Command, args []string) error {
	be, err := openBackend(cmd)
	if err != nil {
		logError("opening backend: %v", err)
		return err
	}

	l, err := lopez.New(lopez.WithBackend(be))
	if err != nil {
		logError("initializing: %v", err)
		return err
	}
	defer func() { _ = l.Close() }()

	wave, _ := cmd.Flags().GetString("wave")
	ranks, err := l.PageRank(context.Background(), wave)
	if err != nil {
		logError("computing page rank for wave %q: %v", wave, err)
		return err
	}

	ids := make([]uint64, 0, len(ranks))
	for id := range ranks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ranks[ids[i]] > ranks[ids[j]] })

	top, _ := cmd.Flags().GetInt("top")
	if top > 0 && top < len(ids) {
		ids = ids[:top]
	}
	for _, id := range ids {
		fmt.Printf("%d\t%.6f\n", id, ranks[id])
	}

	logInfo("ranked %d pages in wave %q", len(ranks), wave)
	return nil
}
