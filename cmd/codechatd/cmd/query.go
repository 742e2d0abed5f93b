package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codechat/codechatd/internal/indexer"
)

func newQueryCmd() *cobra.Command {
	var k int
	var root string

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the persisted index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absRoot, err := projectRoot(sliceOf(root))
			if err != nil {
				return err
			}

			holder, err := loadConfig()
			if err != nil {
				return err
			}
			cfg := holder.Get()

			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			defer embedder.Close()

			idx, err := indexer.New(indexer.Config{
				Root:       absRoot,
				CacheDir:   cfg.CacheDir,
				Dimensions: cfg.Embedding.Dimensions,
				Embedder:   embedder,
			})
			if err != nil {
				return err
			}
			defer idx.Close()

			results, err := idx.Query(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results")
				return nil
			}
			for _, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%8.4f  %s\n", res.Score, res.Path)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", 5, "Number of results")
	cmd.Flags().StringVar(&root, "root", ".", "Project root")

	return cmd
}

func sliceOf(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
