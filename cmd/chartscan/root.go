package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chartscan",
	Short: "Parse, hash, and lint Clone Hero charts",
	Long: `chartscan parses .chart, .mid, and .sng rhythm-game charts into a
normalized track representation, computes a content-addressed hash per
playable track, and reports chart issues.`,
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
