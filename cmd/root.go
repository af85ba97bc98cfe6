package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagerecon/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "pagerecon",
	Short: "pagerecon - Rebuild scanned pages as PDFs with positioned text",
	Long: `pagerecon turns a page image into a PDF that keeps the page's layout.

It finds the text blocks on the page, recognizes each block with a local or
cloud OCR backend and writes the text of every block at the block's position
on a new page.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("pagerecon executed")

		fmt.Println("Welcome to pagerecon!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
