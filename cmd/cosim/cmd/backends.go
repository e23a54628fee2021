package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosimlab/cosim/bridge"

	// Register the built-in backends.
	_ "github.com/cosimlab/cosim/bridge/fli"
	_ "github.com/cosimlab/cosim/bridge/vhpi"
	_ "github.com/cosimlab/cosim/bridge/vpi"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the registered procedural-interface backends",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range bridge.Backends() {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
