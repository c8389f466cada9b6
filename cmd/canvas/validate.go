package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bert-systems/canvas/internal/presentation/tui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a board for structural problems",
	Long:  `Loads the board and reports missing required inputs, incompatible edges, locked running nodes and cycles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openBoard(cmd)
		if err != nil {
			return err
		}
		defer closeApp(app)

		res := app.Session.Validate()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			out, err := tui.NewRenderer()(tui.ValidationReport(app.Board.Name, res))
			if err != nil {
				return err
			}
			fmt.Print(out)
		}
		if !res.Valid {
			return fmt.Errorf("board has %d error(s)", len(res.Errors()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("json", false, "Print the report as JSON")
}
