package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/pastemark/internal/registry"
)

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the supported AI models",
	Long: `List every model pastemark can call. Pass the KEY column to --ai-model
or set it as ai-model in the config file.`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().StringP("output", "o", "table", "output format (table, yaml)")
}

// modelEntry is the YAML shape of one model
type modelEntry struct {
	Key      string `yaml:"key"`
	Platform string `yaml:"platform"`
	Model    string `yaml:"model"`
	Kind     string `yaml:"kind"`
}

func runModels(cmd *cobra.Command, _ []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	return writeModels(cmd.OutOrStdout(), output, registry.All())
}

func writeModels(w io.Writer, output string, models []registry.Descriptor) error {
	switch output {
	case "yaml":
		entries := make([]modelEntry, 0, len(models))
		for _, d := range models {
			entries = append(entries, modelEntry{
				Key:      d.Key(),
				Platform: d.PlatformID,
				Model:    d.ModelID,
				Kind:     string(d.Kind),
			})
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]modelEntry{"models": entries}); err != nil {
			return fmt.Errorf("failed to encode models: %w", err)
		}
		return enc.Close()

	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tPLATFORM\tMODEL")
		for _, d := range models {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Key(), d.PlatformID, d.ModelID)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown output format %q, must be table or yaml", output)
	}
}
