package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	bridge "github.com/SaveTheRbtz/pandoc-bridge-go"
)

var (
	flagVerbose  bool
	flagEngine   string
	flagCapacity int
)

// logger is replaced once the flags are parsed.
var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "pandocbridge",
	Short: "Stream documents through a conversion engine",
	Long: `pandocbridge feeds character streams to a document conversion engine and
collects its output, either for local files or over HTTP.

Engines:
  identity     copies the input, converting only between equal formats
  html         converts HTML to Markdown
  wasm[:PATH]  runs a WebAssembly guest, the built-in identity guest by default`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "be verbose")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "identity", "conversion engine: identity, html or wasm[:PATH]")
	rootCmd.PersistentFlags().IntVar(&flagCapacity, "capacity", bridge.DefaultCapacity, "characters moved per pull")
}

func setupLogger(*cobra.Command, []string) (err error) {
	if flagVerbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
