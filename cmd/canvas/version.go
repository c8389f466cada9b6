package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bert-systems/canvas"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of canvas",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("canvas version %s\n", strings.TrimSpace(canvas.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
