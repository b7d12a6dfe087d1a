// Package config provides configuration management for pastemark.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/pastemark/internal/converter"
	"github.com/platinummonkey/pastemark/internal/imageprep"
	"github.com/platinummonkey/pastemark/internal/registry"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "PASTEMARK"

// Sink types
const (
	SinkNone  = "none"
	SinkAzure = "azure"
	SinkHTTP  = "http"
)

// Config holds all configuration settings for pastemark.
// Configuration precedence: CLI flags > Environment variables > Config file > Defaults
type Config struct {
	// AttachmentsDir is where pasted images are stored
	AttachmentsDir string `yaml:"attachments-dir"`

	// StateFile persists the salt and encrypted API keys
	StateFile string `yaml:"state-file"`

	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log-level"`

	// LogFormat is console or json
	LogFormat string `yaml:"log-format"`

	// ImageFormat is webp, png, avif or jpeg; anything else becomes webp
	ImageFormat string `yaml:"image-format"`

	// CompressionLevel is the encoder quality, 1-100
	CompressionLevel int `yaml:"compression-level"`

	// BinExec is the absolute path of ffmpeg, magick or vips, used for AVIF
	BinExec string `yaml:"bin-exec"`

	// AIModel selects the platform/model used for OCR and summarize
	AIModel string `yaml:"ai-model"`

	Sink  SinkConfig  `yaml:"sink"`
	Serve ServeConfig `yaml:"serve"`
}

// SinkConfig selects an optional remote destination for saved images
type SinkConfig struct {
	Type  string          `yaml:"type"`
	Azure AzureSinkConfig `yaml:"azure"`
	HTTP  HTTPSinkConfig  `yaml:"http"`
}

// AzureSinkConfig holds blob storage settings
type AzureSinkConfig struct {
	Account    string `yaml:"account"`
	Key        string `yaml:"key"`
	Container  string `yaml:"container"`
	ServiceURL string `yaml:"service-url,omitempty"`
}

// HTTPSinkConfig holds image host settings
type HTTPSinkConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api-key"`
}

// ServeConfig holds HTTP surface settings
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads configuration from multiple sources and returns a validated Config.
// flags may be nil; when set, flags named after config keys override everything else.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	// A missing .env file is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".pastemark")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	config := &Config{
		AttachmentsDir:   v.GetString("attachments-dir"),
		StateFile:        v.GetString("state-file"),
		LogLevel:         v.GetString("log-level"),
		LogFormat:        v.GetString("log-format"),
		ImageFormat:      v.GetString("image-format"),
		CompressionLevel: v.GetInt("compression-level"),
		BinExec:          v.GetString("bin-exec"),
		AIModel:          v.GetString("ai-model"),
		Sink: SinkConfig{
			Type: v.GetString("sink.type"),
			Azure: AzureSinkConfig{
				Account:    v.GetString("sink.azure.account"),
				Key:        v.GetString("sink.azure.key"),
				Container:  v.GetString("sink.azure.container"),
				ServiceURL: v.GetString("sink.azure.service-url"),
			},
			HTTP: HTTPSinkConfig{
				Endpoint: v.GetString("sink.http.endpoint"),
				APIKey:   v.GetString("sink.http.api-key"),
			},
		},
		Serve: ServeConfig{
			Addr: v.GetString("serve.addr"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("attachments-dir", filepath.Join(home, "Pastemark"))
	v.SetDefault("state-file", filepath.Join(home, ".pastemark-state.json"))
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("image-format", string(converter.DefaultFormat))
	v.SetDefault("compression-level", imageprep.DefaultQuality)
	v.SetDefault("bin-exec", "")
	v.SetDefault("ai-model", "")
	v.SetDefault("sink.type", SinkNone)
	v.SetDefault("sink.azure.account", "")
	v.SetDefault("sink.azure.key", "")
	v.SetDefault("sink.azure.container", "")
	v.SetDefault("sink.azure.service-url", "")
	v.SetDefault("sink.http.endpoint", "")
	v.SetDefault("sink.http.api-key", "")
	v.SetDefault("serve.addr", "127.0.0.1:8787")
}

// Validate normalizes values and checks that the configuration is internally consistent
func (c *Config) Validate() error {
	var err error

	if c.AttachmentsDir, err = expandHome("attachments-dir", c.AttachmentsDir); err != nil {
		return err
	}
	if err := os.MkdirAll(c.AttachmentsDir, 0755); err != nil {
		return fmt.Errorf("failed to create attachments directory %s: %w", c.AttachmentsDir, err)
	}

	if c.StateFile, err = expandHome("state-file", c.StateFile); err != nil {
		return err
	}
	stateDir := filepath.Dir(c.StateFile)
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state file directory %s: %w", stateDir, err)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log-level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log-format %q, must be console or json", c.LogFormat)
	}

	c.ImageFormat = string(converter.ParseFormat(c.ImageFormat))

	switch {
	case c.CompressionLevel <= 0:
		c.CompressionLevel = imageprep.DefaultQuality
	case c.CompressionLevel > 100:
		c.CompressionLevel = 100
	}

	if c.BinExec != "" && !filepath.IsAbs(c.BinExec) {
		return fmt.Errorf("bin-exec must be an absolute path, got %q", c.BinExec)
	}

	c.AIModel = strings.TrimSpace(c.AIModel)
	if c.AIModel != "" {
		if _, ok := registry.LookupKey(c.AIModel); !ok {
			return fmt.Errorf("unknown ai-model %q, run 'pastemark models' for the list", c.AIModel)
		}
	}

	if err := c.validateSink(); err != nil {
		return fmt.Errorf("invalid sink configuration: %w", err)
	}

	if c.Serve.Addr == "" {
		return fmt.Errorf("serve.addr cannot be empty")
	}

	return nil
}

// validateSink checks the settings required by the selected sink type
func (c *Config) validateSink() error {
	c.Sink.Type = strings.ToLower(strings.TrimSpace(c.Sink.Type))

	switch c.Sink.Type {
	case "", SinkNone:
		c.Sink.Type = SinkNone
	case SinkAzure:
		if c.Sink.Azure.Account == "" || c.Sink.Azure.Key == "" || c.Sink.Azure.Container == "" {
			return fmt.Errorf("azure sink requires account, key and container")
		}
	case SinkHTTP:
		if c.Sink.HTTP.Endpoint == "" {
			return fmt.Errorf("http sink requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown sink type %q, must be one of: none, azure, http", c.Sink.Type)
	}

	return nil
}

func expandHome(key, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand home directory in %s: %w", key, err)
	}
	return filepath.Join(home, path[2:]), nil
}

// APIKeyFromEnv reads <PLATFORM>_API_KEY for a registry platform, e.g. ANTHROPIC_API_KEY.
// Only used to import keys into the vault.
func APIKeyFromEnv(platform string) string {
	name := strings.ToUpper(platform) + "_API_KEY"
	if key := strings.TrimSpace(os.Getenv(name)); key != "" {
		return key
	}

	// DashScope's own variable name
	if strings.EqualFold(platform, "AlibabaCloud") {
		return strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY"))
	}
	return ""
}

// Redacted returns a copy with secrets masked
func (c *Config) Redacted() *Config {
	r := *c
	r.Sink.Azure.Key = redact(c.Sink.Azure.Key)
	r.Sink.HTTP.APIKey = redact(c.Sink.HTTP.APIKey)
	return &r
}

func redact(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) > 8:
		return "***" + secret[len(secret)-4:]
	default:
		return "***"
	}
}

// YAML renders the redacted configuration in config file syntax
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

// String returns a string representation of the configuration (with sensitive data redacted)
func (c *Config) String() string {
	out, err := c.YAML()
	if err != nil {
		return fmt.Sprintf("Configuration: %v", err)
	}
	return "Configuration:\n" + string(out)
}
