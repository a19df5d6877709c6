package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mathbot/pkg/classify"
	"mathbot/pkg/orchestrator"
	"mathbot/pkg/render"

	"github.com/spf13/cobra"
)

var (
	renderOutput  string
	renderGrammar string
)

var errNoMaths = errors.New("no maths found in input")

// renderCmd renders one message the way the bot would, without a chat channel.
var renderCmd = &cobra.Command{
	Use:   "render [text]",
	Short: "Render one message to an image file",
	Long: "Classifies the text (or stdin when no text is given) with the configured grammar, renders it " +
		"and writes the image. Typesetting errors print the same minimized diagnostic the bot sends.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime(os.Stderr, "cmd.render")
		if err != nil {
			return err
		}

		text, err := resolveRenderText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		grammarName := cfg.Classifier.Grammar
		if renderGrammar != "" {
			grammarName = renderGrammar
		}
		grammar, err := classify.ForName(grammarName)
		if err != nil {
			return err
		}

		renderer, err := newRenderer(cfg, os.Stderr, log)
		if err != nil {
			return err
		}

		return renderOnce(cmd.Context(), grammar, renderer, text, renderOutput, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", render.ImageFilename, "image file to write")
	renderCmd.Flags().StringVarP(&renderGrammar, "grammar", "g", "", "delimiter grammar (fenced or inline); defaults to config")
}

func resolveRenderText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	return string(data), nil
}

func renderOnce(ctx context.Context, grammar classify.Grammar, renderer orchestrator.Renderer, text string, output string, out io.Writer) error {
	if grammar.Classify(text) != classify.MathPresent {
		return errNoMaths
	}

	fragments := grammar.Extract(text)
	if len(fragments) == 0 {
		return errNoMaths
	}

	image, err := renderer.Render(ctx, fragments)
	if err != nil {
		var typesetErr *render.TypesetError
		if errors.As(err, &typesetErr) {
			fmt.Fprintln(out, typesetErr.Diagnostic())
		}
		return fmt.Errorf("render failed (%s): %w", render.KindOf(err), err)
	}

	if err := os.WriteFile(output, image.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	fmt.Fprintf(out, "wrote %s (%d bytes, %d fragments)\n", output, len(image.Data), len(fragments))
	return nil
}
