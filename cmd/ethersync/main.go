package main

import (
	"os"

	"github.com/ethersync/ethersync/cmd/ethersync/commands"
)

func main() {
	rootCmd := commands.RootCommand()
	rootCmd.AddCommand(
		commands.VersionCommand(),
		commands.SimulateCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}
