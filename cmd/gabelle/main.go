package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gabelle",
	Short: "Gabelle — Usage Analytics & Cost Accounting",
	Long:  "Gabelle records per-user AI API usage, estimates its cost from model pricing tables, and serves per-user analytics over raw listings and periodized summaries.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/gabelle.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
