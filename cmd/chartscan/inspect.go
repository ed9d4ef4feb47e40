package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var inspectJSON bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output the report as JSON")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <chart file, folder, or .sng>...",
	Short: "Parse charts and print tracks, hashes, and issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, path := range args {
			report, err := scanPath(path)
			if err != nil {
				log.Printf("Error scanning %s: %v", path, err)
				os.Exit(1)
			}
			printReport(report)
		}
	},
}

func printReport(report *Report) {
	if inspectJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Printf("Error marshaling to JSON: %v", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Chart: %s (%s)\n", report.Path, report.Format)
	if name := report.Metadata["Name"]; name != "" {
		fmt.Printf("Title: %s\n", name)
	}
	if artist := report.Metadata["Artist"]; artist != "" {
		fmt.Printf("Artist: %s\n", artist)
	}
	fmt.Println()

	fmt.Printf("Tracks: %d\n", len(report.Tracks))
	for _, t := range report.Tracks {
		fmt.Printf("  %-8s %-14s %5d notes  %s\n", t.Difficulty, t.Instrument, t.NoteCount, t.Hash)
	}
	fmt.Println()

	if len(report.Issues) == 0 {
		fmt.Println("No issues found")
		return
	}
	fmt.Printf("Issues: %d\n", len(report.Issues))
	for _, issue := range report.Issues {
		where := ""
		if issue.Instrument != "" {
			where = fmt.Sprintf(" (%s %s)", issue.Difficulty, issue.Instrument)
		}
		fmt.Printf("  %s%s: %s\n", issue.Type, where, issue.Description)
	}
}
