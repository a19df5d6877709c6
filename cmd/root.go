/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"mathbot/pkg/config"
	"mathbot/pkg/logger"
	"mathbot/pkg/render"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mathbot",
	Short: "Render LaTeX maths posted in chat",
	Long: "mathbot watches chat messages for LaTeX maths, typesets it in a resource-limited sandbox and " +
		"replies with an image. Edits re-render, and failures are reported to the author.",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRuntime loads config and installs the process logger writing to w.
func loadRuntime(w io.Writer, component string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewWithWriter(cfg.Logging, w)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return cfg, slog.Default().With("component", component), nil
}

// newRenderer builds the configured renderer and clears scratch directories left by a killed
// process. Toolchain stderr is written to stderr.
func newRenderer(cfg *config.Config, stderr io.Writer, log *slog.Logger) (*render.Renderer, error) {
	renderer, err := render.NewFromConfig(cfg.Renderer, stderr, log)
	if err != nil {
		return nil, err
	}

	removed, err := renderer.Root().Sweep()
	if err != nil {
		log.Warn("Failed to remove stale render directories", "root", renderer.Root().Path(), "error", err)
	} else if removed > 0 {
		log.Info("Removed stale render directories", "root", renderer.Root().Path(), "count", removed)
	}

	return renderer, nil
}
