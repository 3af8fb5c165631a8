package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search a source for securities matching a name or symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, _, err := buildSource(cmd)
			if err != nil {
				return err
			}
			instruments, err := src.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(instruments) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No matches."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderInstruments(instruments))
			return nil
		},
	}
}
