package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mrwolf/bible-research/internal/api"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bible-research %s\n", api.Version)
		fmt.Printf("  Go: %s\n", runtime.Version())
	},
}
