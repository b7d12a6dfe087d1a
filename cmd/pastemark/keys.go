package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/config"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/provider"
	"github.com/platinummonkey/pastemark/internal/registry"
	"github.com/platinummonkey/pastemark/internal/state"
	"github.com/platinummonkey/pastemark/internal/vault"
)

// keysCmd represents the keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encrypted API keys",
	Long: `Store, list and delete the API keys used for AI models.

Keys are stored per model (platform/model) and encrypted with AES-GCM under a
key derived from an installation salt. The plain key is never written to disk.`,
}

var keysSetCmd = &cobra.Command{
	Use:   "set <platform/model>",
	Short: "Store the API key for a model, read from stdin",
	Long: `Read an API key from the first line of stdin and store it encrypted for
the given model. An empty line removes the stored key.

Examples:
  echo "$ANTHROPIC_API_KEY" | pastemark keys set Anthropic/claude-3-5-sonnet-20241022`,
	Args: cobra.ExactArgs(1),
	RunE: runKeysSet,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models with a stored API key",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <platform/model>",
	Short: "Remove the stored API key for a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysDelete,
}

var keysImportEnvCmd = &cobra.Command{
	Use:   "import-env",
	Short: "Encrypt API keys found in <PLATFORM>_API_KEY environment variables",
	Long: `Look up ANTHROPIC_API_KEY, GOOGLE_API_KEY, MISTRAL_API_KEY, OPENAI_API_KEY,
TOGETHERAI_API_KEY and ALIBABACLOUD_API_KEY (or DASHSCOPE_API_KEY) and store each
one found for every model of that platform.`,
	Args: cobra.NoArgs,
	RunE: runKeysImportEnv,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd, keysListCmd, keysDeleteCmd, keysImportEnvCmd)
}

// openVault loads only what key management needs
func openVault(cmd *cobra.Command) (*vault.Vault, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	stateStore, err := state.LoadOrCreate(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state: %w", err)
	}

	return vault.Open(stateStore, logger.Get())
}

func lookupModel(key string) (registry.Descriptor, error) {
	desc, ok := registry.LookupKey(strings.TrimSpace(key))
	if !ok {
		return registry.Descriptor{}, apperrors.NewConfigurationError(
			fmt.Sprintf("unknown model %q, run 'pastemark models' for the list", key), nil)
	}
	return desc, nil
}

// readKey returns the first line of r without surrounding whitespace
func readKey(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	desc, err := lookupModel(args[0])
	if err != nil {
		return err
	}

	apiKey, err := readKey(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if apiKey != "" {
		if err := provider.ValidateAPIKey(apiKey); err != nil {
			return err
		}
	}

	v, err := openVault(cmd)
	if err != nil {
		return err
	}
	if err := v.Set(desc.Key(), apiKey); err != nil {
		return err
	}

	if apiKey == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed API key for %s\n", desc.Key())
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s\n", desc.Key())
	}
	return nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	v, err := openVault(cmd)
	if err != nil {
		return err
	}

	keys := v.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No API keys stored")
		return nil
	}
	for _, k := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	desc, err := lookupModel(args[0])
	if err != nil {
		return err
	}

	v, err := openVault(cmd)
	if err != nil {
		return err
	}
	if err := v.Delete(desc.Key()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed API key for %s\n", desc.Key())
	return nil
}

func runKeysImportEnv(cmd *cobra.Command, _ []string) error {
	v, err := openVault(cmd)
	if err != nil {
		return err
	}

	imported := 0
	for _, desc := range registry.All() {
		apiKey := config.APIKeyFromEnv(desc.PlatformID)
		if apiKey == "" {
			continue
		}
		if err := provider.ValidateAPIKey(apiKey); err != nil {
			return fmt.Errorf("%s_API_KEY: %w", strings.ToUpper(desc.PlatformID), err)
		}
		if err := v.Set(desc.Key(), apiKey); err != nil {
			return err
		}
		imported++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d API keys\n", imported)
	return nil
}
