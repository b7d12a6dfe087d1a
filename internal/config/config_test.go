package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// isolate points HOME and the working directory at a temp dir so no user config or .env is read
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Chdir(tmpDir)
	return tmpDir
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	tmpDir := t.TempDir()
	return &Config{
		AttachmentsDir: filepath.Join(tmpDir, "attachments"),
		StateFile:      filepath.Join(tmpDir, "state", "state.json"),
		LogLevel:       "info",
		LogFormat:      "console",
		ImageFormat:    "webp",
		Sink:           SinkConfig{Type: SinkNone},
		Serve:          ServeConfig{Addr: ":8787"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir := isolate(t)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AttachmentsDir != filepath.Join(tmpDir, "Pastemark") {
		t.Errorf("AttachmentsDir = %s", cfg.AttachmentsDir)
	}
	if cfg.StateFile != filepath.Join(tmpDir, ".pastemark-state.json") {
		t.Errorf("StateFile = %s", cfg.StateFile)
	}
	if cfg.ImageFormat != "webp" {
		t.Errorf("ImageFormat = %s, want webp", cfg.ImageFormat)
	}
	if cfg.CompressionLevel != 90 {
		t.Errorf("CompressionLevel = %d, want 90", cfg.CompressionLevel)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Sink.Type != SinkNone || cfg.AIModel != "" {
		t.Errorf("sink = %s, model = %q", cfg.Sink.Type, cfg.AIModel)
	}
	if _, err := os.Stat(cfg.AttachmentsDir); err != nil {
		t.Errorf("attachments dir not created: %v", err)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	isolate(t)

	t.Setenv("PASTEMARK_IMAGE_FORMAT", "AVIF")
	t.Setenv("PASTEMARK_COMPRESSION_LEVEL", "75")
	t.Setenv("PASTEMARK_LOG_LEVEL", "DEBUG")
	t.Setenv("PASTEMARK_AI_MODEL", "Mistral/pixtral-12b-2409")
	t.Setenv("PASTEMARK_SINK_TYPE", "http")
	t.Setenv("PASTEMARK_SINK_HTTP_ENDPOINT", "https://img.example/upload")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ImageFormat != "avif" || cfg.CompressionLevel != 75 || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AIModel != "Mistral/pixtral-12b-2409" {
		t.Errorf("AIModel = %q", cfg.AIModel)
	}
	if cfg.Sink.Type != SinkHTTP || cfg.Sink.HTTP.Endpoint != "https://img.example/upload" {
		t.Errorf("Sink = %+v", cfg.Sink)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := isolate(t)

	configFile := filepath.Join(tmpDir, "config.yaml")
	content := `attachments-dir: ` + filepath.Join(tmpDir, "notes") + `
image-format: jpg
compression-level: 250
ai-model: Google/gemini-1.5-flash
sink:
  type: azure
  azure:
    account: devstore
    key: c2VjcmV0LWtleS12YWx1ZQ==
    container: pastes
serve:
  addr: 0.0.0.0:9000
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configFile, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AttachmentsDir != filepath.Join(tmpDir, "notes") {
		t.Errorf("AttachmentsDir = %s", cfg.AttachmentsDir)
	}
	if cfg.ImageFormat != "jpeg" {
		t.Errorf("ImageFormat = %s, want jpeg", cfg.ImageFormat)
	}
	if cfg.CompressionLevel != 100 {
		t.Errorf("CompressionLevel = %d, want clamped 100", cfg.CompressionLevel)
	}
	if cfg.Sink.Azure.Container != "pastes" || cfg.Serve.Addr != "0.0.0.0:9000" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_FlagsOverride(t *testing.T) {
	isolate(t)
	t.Setenv("PASTEMARK_IMAGE_FORMAT", "jpeg")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("image-format", "", "")
	flags.Int("compression-level", 0, "")
	if err := flags.Parse([]string{"--image-format", "png"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ImageFormat != "png" {
		t.Errorf("ImageFormat = %s, want flag value png", cfg.ImageFormat)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	tmpDir := isolate(t)

	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("PASTEMARK_LOG_FORMAT=json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// restores the variable godotenv sets once the test ends
	t.Setenv("PASTEMARK_LOG_FORMAT", "")
	os.Unsetenv("PASTEMARK_LOG_FORMAT")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %s, want json from .env", cfg.LogFormat)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty attachments dir", func(c *Config) { c.AttachmentsDir = "" }, "attachments-dir"},
		{"empty state file", func(c *Config) { c.StateFile = "" }, "state-file"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log-level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log-format"},
		{"relative bin-exec", func(c *Config) { c.BinExec = "bin/ffmpeg" }, "bin-exec"},
		{"unknown model", func(c *Config) { c.AIModel = "OpenAI/gpt-99" }, "ai-model"},
		{"unknown sink", func(c *Config) { c.Sink.Type = "s3" }, "unknown sink"},
		{"azure incomplete", func(c *Config) { c.Sink = SinkConfig{Type: SinkAzure, Azure: AzureSinkConfig{Account: "a"}} }, "azure"},
		{"http without endpoint", func(c *Config) { c.Sink.Type = SinkHTTP }, "endpoint"},
		{"empty serve addr", func(c *Config) { c.Serve.Addr = "" }, "serve.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := validConfig(t)
	cfg.ImageFormat = "gif"
	cfg.CompressionLevel = -5
	cfg.LogLevel = "WARN"
	cfg.Sink.Type = ""
	cfg.AIModel = "  Anthropic/claude-3-haiku-20240307 "

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.ImageFormat != "webp" || cfg.CompressionLevel != 90 || cfg.LogLevel != "warn" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Sink.Type != SinkNone || cfg.AIModel != "Anthropic/claude-3-haiku-20240307" {
		t.Errorf("sink = %q, model = %q", cfg.Sink.Type, cfg.AIModel)
	}
}

func TestValidate_HomeDirectoryExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := validConfig(t)
	cfg.AttachmentsDir = "~/vault/attachments"
	cfg.StateFile = "~/.config/pastemark/state.json"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.AttachmentsDir != filepath.Join(tmpDir, "vault", "attachments") {
		t.Errorf("AttachmentsDir = %s", cfg.AttachmentsDir)
	}
	if cfg.StateFile != filepath.Join(tmpDir, ".config", "pastemark", "state.json") {
		t.Errorf("StateFile = %s", cfg.StateFile)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", " sk-ant ")
	t.Setenv("TOGETHERAI_API_KEY", "tg-key")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ALIBABACLOUD_API_KEY", "")
	t.Setenv("DASHSCOPE_API_KEY", "ds-key")

	tests := []struct {
		platform string
		want     string
	}{
		{"Anthropic", "sk-ant"},
		{"TogetherAI", "tg-key"},
		{"OpenAI", ""},
		{"AlibabaCloud", "ds-key"},
	}

	for _, tt := range tests {
		if got := APIKeyFromEnv(tt.platform); got != tt.want {
			t.Errorf("APIKeyFromEnv(%q) = %q, want %q", tt.platform, got, tt.want)
		}
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Sink = SinkConfig{
		Type:  SinkAzure,
		Azure: AzureSinkConfig{Account: "acct", Key: "supersecretaccountkey1234", Container: "c"},
		HTTP:  HTTPSinkConfig{APIKey: "short"},
	}

	s := cfg.String()
	if strings.Contains(s, "supersecret") || strings.Contains(s, "short") {
		t.Errorf("String() leaked a secret:\n%s", s)
	}
	if !strings.Contains(s, "***1234") {
		t.Errorf("String() missing redacted key:\n%s", s)
	}
	if !strings.Contains(s, "attachments-dir:") {
		t.Errorf("String() should use config file keys:\n%s", s)
	}
	if cfg.Sink.Azure.Key != "supersecretaccountkey1234" {
		t.Error("String() modified the config")
	}
}
