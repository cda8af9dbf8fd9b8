package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of kestrel",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		})
}
