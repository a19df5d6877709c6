package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath        = "MATHBOT_CONFIG"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const (
	GrammarFenced = "fenced"
	GrammarInline = "inline"
)

// Config is the root runtime configuration.
type Config struct {
	Channels   ChannelsConfig   `json:"channels" yaml:"channels"`
	Renderer   RendererConfig   `json:"renderer" yaml:"renderer"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Reactions  ReactionsConfig  `json:"reactions" yaml:"reactions"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify"`
	Gateway    GatewayConfig    `json:"gateway" yaml:"gateway"`
	Logging    LoggingConfig    `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allow_from" yaml:"allow_from"`
}

// RendererConfig configures the typesetting toolchain and its sandbox.
type RendererConfig struct {
	LatexBinary   string        `json:"latex_binary" yaml:"latex_binary"`
	ConvertBinary string        `json:"convert_binary" yaml:"convert_binary"`
	Density       int           `json:"density" yaml:"density"`
	Border        int           `json:"border" yaml:"border"`
	WorkRoot      string        `json:"work_root" yaml:"work_root"`
	Workers       int           `json:"workers" yaml:"workers"`
	Sandbox       SandboxConfig `json:"sandbox" yaml:"sandbox"`
}

// SandboxConfig is the resource-limit profile applied to every toolchain child.
type SandboxConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	CPUSeconds       int  `json:"cpu_seconds" yaml:"cpu_seconds"`
	DataMiB          int  `json:"data_mib" yaml:"data_mib"`
	StackMiB         int  `json:"stack_mib" yaml:"stack_mib"`
	FileMiB          int  `json:"file_mib" yaml:"file_mib"`
	OpenFiles        int  `json:"open_files" yaml:"open_files"`
	MsgQueueBytes    int  `json:"msgqueue_bytes" yaml:"msgqueue_bytes"`
	Nice             int  `json:"nice" yaml:"nice"`
	WallClockSeconds int  `json:"wall_clock_seconds" yaml:"wall_clock_seconds"`
}

// ClassifierConfig selects the delimiter grammar used to find math.
type ClassifierConfig struct {
	Grammar string `json:"grammar" yaml:"grammar"`
}

// ReactionsConfig names the emoji the bot places on source messages.
type ReactionsConfig struct {
	Warning string   `json:"warning" yaml:"warning"`
	Failure []string `json:"failure" yaml:"failure"`
}

// NotifyConfig controls direct messages sent to authors after a failed render.
type NotifyConfig struct {
	Maintainer              string  `json:"maintainer" yaml:"maintainer"`
	DirectMessagesPerMinute float64 `json:"direct_messages_per_minute" yaml:"direct_messages_per_minute"`
}

// GatewayConfig configures HTTP status server bind settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Renderer: RendererConfig{
			LatexBinary:   "pdflatex",
			ConvertBinary: "convert",
			Density:       150,
			Border:        10,
			Workers:       4,
			Sandbox: SandboxConfig{
				Enabled:          true,
				CPUSeconds:       4,
				DataMiB:          200,
				StackMiB:         10,
				FileMiB:          10,
				OpenFiles:        200,
				MsgQueueBytes:    1024,
				Nice:             10,
				WallClockSeconds: 10,
			},
		},
		Classifier: ClassifierConfig{Grammar: GrammarFenced},
		Reactions: ReactionsConfig{
			Warning: "🤔",
			Failure: []string{"🤯", "💔"},
		},
		Notify: NotifyConfig{
			Maintainer:              "the bot maintainer",
			DirectMessagesPerMinute: 6,
		},
		Gateway: GatewayConfig{Host: "0.0.0.0", Port: 18790},
	}
}

// LoadConfig loads .env, resolves an optional config file on top of defaults, and applies
// environment overrides.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := loadFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, cfg)
	default:
		err = json.Unmarshal(content, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

// Validate rejects settings the runtime cannot operate with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch c.Classifier.Grammar {
	case GrammarFenced, GrammarInline:
	default:
		return fmt.Errorf("classifier.grammar must be %q or %q, got %q", GrammarFenced, GrammarInline, c.Classifier.Grammar)
	}

	if c.Renderer.Workers <= 0 {
		return fmt.Errorf("renderer.workers must be positive, got %d", c.Renderer.Workers)
	}
	if strings.TrimSpace(c.Renderer.LatexBinary) == "" || strings.TrimSpace(c.Renderer.ConvertBinary) == "" {
		return errors.New("renderer.latex_binary and renderer.convert_binary are required")
	}
	if strings.TrimSpace(c.Reactions.Warning) == "" {
		return errors.New("reactions.warning is required")
	}
	if len(c.Reactions.Failure) == 0 || slices.ContainsFunc(c.Reactions.Failure, func(emoji string) bool {
		return strings.TrimSpace(emoji) == ""
	}) {
		return errors.New("reactions.failure must list at least one non-empty emoji")
	}

	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
		cfg.Channels.Telegram.Enabled = true
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is MATHBOT_CONFIG first, then cwd-local fallback paths. An empty path with a nil
// error means no file exists and defaults apply.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config", "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
