package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/bert-systems/canvas/internal/presentation/tui"
	"github.com/bert-systems/canvas/pkg/nodetype"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the node types and port types",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates := nodetype.Default().List()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(templates)
		}
		if legend, _ := cmd.Flags().GetBool("legend"); legend {
			fmt.Print(tui.PortLegend(termenv.NewOutput(os.Stdout).Profile))
			return nil
		}
		out, err := tui.NewRenderer()(tui.NodeTypesReport(templates))
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
	typesCmd.Flags().Bool("json", false, "Print the catalog as JSON")
	typesCmd.Flags().Bool("legend", false, "Print the port type colour legend")
}
