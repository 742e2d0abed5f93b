package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codechat/codechatd/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [project-root]",
		Short: "Build the index once and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
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
				Root:       root,
				CacheDir:   cfg.CacheDir,
				Dimensions: cfg.Embedding.Dimensions,
				Embedder:   embedder,
			})
			if err != nil {
				return err
			}
			defer idx.Close()

			if err := idx.BuildIndex(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files\n", idx.Len())
			return nil
		},
	}
	return cmd
}
