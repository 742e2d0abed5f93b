package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codechat/codechatd/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the codechatd version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codechatd version %s\n", version.Version)
		},
	}
}
