package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/backtest-service/internal/strategy"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the built-in strategies and their parameters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STRATEGY\tPARAM\tDEFAULT\tDESCRIPTION")
		for _, d := range strategy.DefaultRegistry().List() {
			fmt.Fprintf(w, "%s\t\t\t%s\n", d.Name, d.Description)
			for _, p := range d.Params {
				fmt.Fprintf(w, "\t%s\t%g\t%s\n", p.Name, p.Default, p.Description)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}
