package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bert-systems/canvas/internal/presentation/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the board as a Mermaid diagram",
	Long:  `Loads the board and prints a Mermaid flowchart with port types on the edges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openBoard(cmd)
		if err != nil {
			return err
		}
		defer closeApp(app)

		overlay := &graph.Overlay{}
		overlay.Status, _ = cmd.Flags().GetBool("status")
		if issues, _ := cmd.Flags().GetBool("issues"); issues {
			res := app.Session.Validate()
			overlay.Issues = &res
		}
		fmt.Print(graph.GenerateMermaid(app.Session.Graph(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("status", false, "Colour nodes by execution status")
	graphCmd.Flags().Bool("issues", false, "Highlight nodes with validation errors")
}
