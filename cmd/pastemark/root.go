package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pastemark",
	Short: "Paste images into notes as optimized files or AI-generated Markdown",
	Long: `pastemark turns clipboard images into files a Markdown editor can embed and,
optionally, sends them to a multimodal AI model for OCR or summarization.

Features:
  - Convert images to WebP, PNG, JPEG or AVIF (via ffmpeg, magick or vips)
  - OCR images to Markdown with Anthropic, Google, Mistral, OpenAI, TogetherAI or AlibabaCloud models
  - Summarize text into bullet points
  - API keys are stored encrypted, never in plain text
  - Optional upload of saved images to Azure Blob Storage or an image host
  - HTTP API for editor integrations`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags; names match the config file keys and are bound in config.Load
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pastemark.yaml)")
	flags.String("attachments-dir", "", "directory pasted images are saved to")
	flags.String("state-file", "", "file holding the encrypted API keys")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("image-format", "", "output format (webp, png, avif, jpeg)")
	flags.Int("compression-level", 0, "encoder quality 1-100")
	flags.String("bin-exec", "", "absolute path of ffmpeg, magick or vips for AVIF")
	flags.String("ai-model", "", "AI model as platform/model, see 'pastemark models'")
}
