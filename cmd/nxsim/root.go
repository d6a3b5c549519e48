// The nxsim command runs the GPU HLE stack from the terminal. It can serve
// the monitoring dashboard, replay recorded pushbuffer dumps, and execute
// cheat programs against a flat memory image.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "nxsim",
	Short: "nxsim runs the GPU HLE stack: monitor an emulation, replay " +
		"pushbuffer dumps, and execute cheat programs.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// An optional .env file can seed the NXSIM_* variables that the
		// subcommands read as flag defaults.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
