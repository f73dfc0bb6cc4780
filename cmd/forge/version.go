package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden by the linker in release builds.
var version = "dev"

var versionCmd = &cobra.Command{
	Use: "version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
