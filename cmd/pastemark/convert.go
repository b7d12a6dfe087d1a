package main

import (
	"context"

	"github.com/spf13/cobra"
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert <image>...",
	Short: "Save images in the configured format and print their embeds",
	Long: `Convert images to the configured format, save them to the attachments
directory and print a Markdown embed for each one.

Images are processed concurrently; one failing image does not stop the others.
If the requested format cannot be produced the image is kept as PNG.

Examples:
  # Convert a screenshot with the default settings (WebP, quality 90)
  pastemark convert screenshot.png

  # Read the image from stdin
  xclip -selection clipboard -t image/png -o | pastemark convert -

  # AVIF through ffmpeg
  pastemark convert --image-format avif --bin-exec /usr/bin/ffmpeg shot.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
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

	result, err := orch.PasteImages(context.Background(), images)
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), result)
}
