// Package cmd provides the command-line interface for the cosim tool.
package cmd

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "cosim",
	Short: "Cosim runs verification tasks against an embedded HDL " +
		"simulator through pluggable procedural-interface backends.",
	Long: `Cosim runs verification tasks against an embedded HDL simulator ` +
		`through pluggable procedural-interface backends. Tests are ` +
		`cooperative tasks that wait on simulator events such as delays, ` +
		`signal edges, and phase boundaries.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	cobra.OnInitialize(loadDotEnv)
}

// loadDotEnv reads a .env file in the working directory, if present.
// Explicit flags still win over the environment.
func loadDotEnv() {
	_ = godotenv.Load()
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func envIntOr(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}
