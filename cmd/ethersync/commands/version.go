package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the semantic version of the build, set at link time.
var Version = "0.1.0-dev"

// VersionCommand constructs the version subcommand.
func VersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}
