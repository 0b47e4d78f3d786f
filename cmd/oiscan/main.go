package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "oiscan"
	version = "v1.2.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "F&O bull/bear qualification scanner",
		Long:    "oiscan scans a configured F&O symbol universe against intraday opening-range rules,\nattaches option open-interest overlays and serves the dashboard API.",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner API server",
		RunE:  runServe,
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan and print the result buckets",
		RunE:  runScanOnce,
	}

	rootCmd.AddCommand(serveCmd, scanCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
