package config

import (
	"errors"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultDaemonAddress    = "127.0.0.1:7878"
	defaultProviderCommand  = "claude"
	defaultProviderModel    = "sonnet"
	defaultRecorderBatch    = 50
	defaultRecorderFlushMs  = 1000
	defaultWebhookTimeoutS  = 10
	defaultTeeMaxLag        = 1024
	defaultProviderMaxTurns = 0
)

type Config struct {
	Daemon   DaemonConfig   `toml:"daemon"`
	Provider ProviderConfig `toml:"provider"`
	Recorder RecorderConfig `toml:"recorder"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DaemonConfig struct {
	Address string `toml:"address"`
}

type ProviderConfig struct {
	Command        string `toml:"command"`
	Model          string `toml:"model"`
	MaxTurns       int    `toml:"max_turns"`
	IncludePartial bool   `toml:"include_partial"`
}

type RecorderConfig struct {
	BatchSize       int `toml:"batch_size"`
	FlushIntervalMs int `toml:"flush_interval_ms"`
	TeeMaxLag       int `toml:"tee_max_lag"`
}

type WebhookConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Daemon: DaemonConfig{Address: defaultDaemonAddress},
		Provider: ProviderConfig{
			Command: defaultProviderCommand,
			Model:   defaultProviderModel,
		},
		Recorder: RecorderConfig{
			BatchSize:       defaultRecorderBatch,
			FlushIntervalMs: defaultRecorderFlushMs,
			TeeMaxLag:       defaultTeeMaxLag,
		},
		Webhook: WebhookConfig{TimeoutSeconds: defaultWebhookTimeoutS},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file under the data dir, overlaying it on the
// defaults. A missing file yields the defaults.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return loadFromPath(path)
}

func loadFromPath(path string) (Config, error) {
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func (c Config) DaemonAddress() string {
	addr := strings.TrimSpace(c.Daemon.Address)
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimRight(addr, "/")
	if addr == "" {
		return defaultDaemonAddress
	}
	return addr
}

func (c Config) DaemonBaseURL() string {
	return "http://" + c.DaemonAddress()
}

func (c Config) ProviderCommand() string {
	cmd := strings.TrimSpace(c.Provider.Command)
	if cmd == "" {
		return defaultProviderCommand
	}
	return cmd
}

func (c Config) ProviderModel() string {
	return strings.TrimSpace(c.Provider.Model)
}

func (c Config) RecorderBatchSize() int {
	if c.Recorder.BatchSize <= 0 {
		return defaultRecorderBatch
	}
	return c.Recorder.BatchSize
}

func (c Config) RecorderFlushInterval() time.Duration {
	ms := c.Recorder.FlushIntervalMs
	if ms <= 0 {
		ms = defaultRecorderFlushMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (c Config) TeeMaxLag() int {
	if c.Recorder.TeeMaxLag <= 0 {
		return defaultTeeMaxLag
	}
	return c.Recorder.TeeMaxLag
}

func (c Config) WebhookURL() string {
	return strings.TrimSpace(c.Webhook.URL)
}

func (c Config) WebhookTimeout() time.Duration {
	s := c.Webhook.TimeoutSeconds
	if s <= 0 {
		s = defaultWebhookTimeoutS
	}
	return time.Duration(s) * time.Second
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

// Render returns the config as TOML, used by the config subcommand.
func (c Config) Render() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
