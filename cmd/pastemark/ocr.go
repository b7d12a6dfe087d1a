package main

import (
	"context"

	"github.com/spf13/cobra"
)

// ocrCmd represents the ocr command
var ocrCmd = &cobra.Command{
	Use:   "ocr <image>...",
	Short: "Convert images to Markdown with the selected AI model",
	Long: `Send each image to the selected AI model and print the Markdown it returns.
Formulas come back as LaTeX.

Each image gets its own session. The model's API key must have been stored
with 'pastemark keys set' first.

Examples:
  # OCR a photo of a whiteboard
  pastemark ocr --ai-model Anthropic/claude-3-5-sonnet-20241022 board.jpg

  # Also save the image and embed it above the text
  pastemark ocr --include-image page.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().Bool("include-image", false, "save the image and embed it above the text")
}

func runOCR(cmd *cobra.Command, args []string) error {
	includeImage, err := cmd.Flags().GetBool("include-image")
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	images, err := readInputs(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	orch, err := a.orchestrator(nil)
	if err != nil {
		return err
	}

	result, err := orch.ConvertToMarkdown(context.Background(), images, includeImage)
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), result)
}
