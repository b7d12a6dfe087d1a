package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/converter"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/state"
	"github.com/platinummonkey/pastemark/internal/vault"
)

func openVault(t *testing.T, path string) (*vault.Vault, *state.Manager) {
	t.Helper()
	store, err := state.LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	v, err := vault.Open(store, logger.Nop())
	if err != nil {
		t.Fatalf("vault.Open() error = %v", err)
	}
	return v, store
}

func TestVaultSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	v, store := openVault(t, path)
	salt := store.Salt()
	if err := v.Set("Anthropic/claude-3-haiku-20240307", "sk-ant-abc"); err != nil {
		t.Fatal(err)
	}
	if err := v.Set("Google/gemini-1.5-pro", "AIza-xyz"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"sk-ant-abc", "AIza-xyz"} {
		if strings.Contains(string(raw), secret) {
			t.Errorf("state file contains %q", secret)
		}
	}

	reopened, store2 := openVault(t, path)
	if store2.Salt() != salt {
		t.Error("salt changed across restarts")
	}
	if got, ok := reopened.Get("Anthropic/claude-3-haiku-20240307"); !ok || got != "sk-ant-abc" {
		t.Errorf("Get() = %q, %v", got, ok)
	}
	if len(reopened.Keys()) != 2 {
		t.Errorf("Keys() = %v", reopened.Keys())
	}
}

func TestVaultCiphertextBoundToModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	const model = "OpenAI/gpt-4o-mini-2024-07-18"

	v, store := openVault(t, path)
	if err := v.Set("OpenAI/gpt-4o-2024-08-06", "sk-other"); err != nil {
		t.Fatal(err)
	}

	// copy the other model's ciphertext under this model's key
	blob, _ := store.GetKey("OpenAI/gpt-4o-2024-08-06")
	store.SetKey(model, blob)
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	if _, ok := v.Get(model); ok {
		t.Fatal("ciphertext decrypted under a different setting key")
	}

	p := newPipelineWithVault(t, v, converter.FormatPNG, nil, model)
	_, err := p.orch.Summarize(context.Background(), "text")
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Errorf("Summarize() error = %v, want configuration error", err)
	}
}
