// Package main provides the entry point for the catsync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "catsync",
	Short: "Keep local files and their catalog entries in sync",
	Long:  "catsync detects local files whose catalog counterparts are missing or stale, and moves dataset metadata between the catalog and the curated Excel workbook.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
