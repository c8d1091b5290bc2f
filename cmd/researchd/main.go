package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "researchd", Short: "Multi-agent research pipeline"}

	root.AddCommand(serveCMD(), migrateCMD(), researchCMD(), ingestCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
