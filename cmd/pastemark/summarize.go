package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// summarizeCmd represents the summarize command
var summarizeCmd = &cobra.Command{
	Use:   "summarize [file|-]",
	Short: "Summarize text into bullet points",
	Long: `Summarize text with the selected AI model. The text is read from the
given file, or from stdin when the argument is "-" or omitted.

Examples:
  pastemark summarize meeting-notes.md
  pbpaste | pastemark summarize`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	source := "-"
	if len(args) == 1 {
		source = args[0]
	}

	inputs, err := readInputs([]string{source}, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	orch, err := a.orchestrator(nil)
	if err != nil {
		return err
	}

	summary, err := orch.Summarize(context.Background(), string(inputs[0]))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}
