package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mathbot/pkg/channel"
	"mathbot/pkg/channel/console"
	"mathbot/pkg/gateway"
	"mathbot/pkg/ui/chat"

	"github.com/spf13/cobra"
)

var (
	consoleImageDir string
	consoleLogFile  string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the bot in the terminal",
	Long: "Runs the bot against a local in-terminal chat. Rendered images are written to the image " +
		"directory; messages can be edited with /edit and deleted with /delete.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		var logOut io.Writer = io.Discard
		if consoleLogFile != "" {
			file, err := os.OpenFile(consoleLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer file.Close()
			logOut = file
		}

		cfg, log, err := loadRuntime(logOut, "cmd.console")
		if err != nil {
			return err
		}

		renderer, err := newRenderer(cfg, logOut, log)
		if err != nil {
			return fmt.Errorf("initialize renderer: %w", err)
		}

		local, err := console.New(consoleImageDir, log)
		if err != nil {
			return err
		}

		svc, err := gateway.NewService(cfg, []channel.Adapter{local}, renderer, log)
		if err != nil {
			return fmt.Errorf("initialize console service: %w", err)
		}
		svc.DisableStatusServer()

		if err := renderer.Check(); err != nil {
			return fmt.Errorf("renderer toolchain unavailable: %w", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Run(ctx)
		}()

		uiErr := chat.Run(ctx, local, chat.RuntimeInfo{
			Grammar:  cfg.Classifier.Grammar,
			Latex:    cfg.Renderer.LatexBinary,
			Sandbox:  cfg.Renderer.Sandbox.Enabled,
			ImageDir: consoleImageDir,
		})

		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return uiErr
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleImageDir, "image-dir", filepath.Join(os.TempDir(), "mathbot-console"), "directory rendered images are written to")
	consoleCmd.Flags().StringVar(&consoleLogFile, "log-file", "", "append logs to this file instead of discarding them")
}
