package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codechat/codechatd/internal/discovery"
	"github.com/codechat/codechatd/internal/extract"
	"github.com/codechat/codechatd/internal/graph"
	"github.com/codechat/codechatd/internal/resolve"
)

func newDepsCmd() *cobra.Command {
	var all bool
	var dependents bool
	var root string

	cmd := &cobra.Command{
		Use:   "deps <path>",
		Short: "Show the dependencies of a file",
		Long: `Builds the dependency graph for the project and prints the
dependencies (or dependents) of the given project-relative path.`,
		Args: cobra.ExactArgs(1),
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

			resolver, err := resolve.New()
			if err != nil {
				return err
			}
			g := graph.New(extract.New(), resolver)
			g.SetRoot(absRoot)

			disc := discovery.New(absRoot, cfg.CacheDir)
			g.Build(cmd.Context(), disc.Files(cmd.Context()))

			id := args[0]
			if !g.Contains(id) {
				return fmt.Errorf("%s is not in the dependency graph", id)
			}

			var results []string
			switch {
			case all && dependents:
				results = g.AllDependents(id)
			case all:
				results = g.AllDeps(id)
			case dependents:
				results = g.DirectDependents(id)
			default:
				results = g.DirectDeps(id)
			}

			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(none)")
				return nil
			}
			for _, dep := range results {
				fmt.Fprintln(cmd.OutOrStdout(), dep)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Transitive instead of direct")
	cmd.Flags().BoolVar(&dependents, "dependents", false, "Dependents instead of dependencies")
	cmd.Flags().StringVar(&root, "root", ".", "Project root")

	return cmd
}
