package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEndpoint     = "https://ai-proxy.lab.epam.com"
	DefaultDeployment   = "gpt-4o"
	DefaultAPIVersion   = "2024-02-01"
	DefaultSystemPrompt = "You are an assistant who answers concisely and informatively."

	ClientSDK  = "sdk"
	ClientHTTP = "http"
)

// Config holds the application configuration
type Config struct {
	Dial       DialConfig
	Chat       ChatConfig
	Log        LogConfig
	Transcript TranscriptConfig
}

// DialConfig describes the chat-completions endpoint and its credential
type DialConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
}

// ChatConfig controls how each turn is sent and rendered
type ChatConfig struct {
	Stream       bool   `mapstructure:"stream"`
	Client       string `mapstructure:"client"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TranscriptConfig points at the SQLite transcript; empty keeps it in memory.
type TranscriptConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"endpoint":      "dial.endpoint",
	"deployment":    "dial.deployment",
	"api-version":   "dial.api_version",
	"stream":        "chat.stream",
	"client":        "chat.client",
	"system-prompt": "chat.system_prompt",
	"log-level":     "log.level",
	"transcript-db": "transcript.db_path",
}

// Load is Read followed by Validate.
func Load(flags *pflag.FlagSet) (*Config, error) {
	config, err := Read(flags)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Read layers config.yaml (from "." or CONFIG_PATH), the environment and any changed flags
// without validating the result. Commands that never call the endpoint use it directly.
func Read(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("dial.endpoint", DefaultEndpoint)
	v.SetDefault("dial.api_key", "")
	v.SetDefault("dial.deployment", DefaultDeployment)
	v.SetDefault("dial.api_version", DefaultAPIVersion)
	v.SetDefault("chat.stream", true)
	v.SetDefault("chat.client", ClientSDK)
	v.SetDefault("chat.system_prompt", DefaultSystemPrompt)
	v.SetDefault("log.level", "warn")
	v.SetDefault("transcript.db_path", "")

	v.SetEnvPrefix("dialchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("dial.api_key", "DIALCHAT_DIAL_API_KEY", "DIAL_API_KEY")
	_ = v.BindEnv("dial.endpoint", "DIALCHAT_DIAL_ENDPOINT", "DIAL_ENDPOINT")

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the fields the chat cannot start without.
func (c *Config) Validate() error {
	c.Dial.APIKey = strings.TrimSpace(c.Dial.APIKey)
	c.Dial.Deployment = strings.TrimSpace(c.Dial.Deployment)
	c.Dial.Endpoint = strings.TrimRight(strings.TrimSpace(c.Dial.Endpoint), "/")

	if c.Dial.APIKey == "" {
		return errors.New("api key is not set (DIAL_API_KEY)")
	}
	if c.Dial.Deployment == "" {
		return errors.New("deployment is not set")
	}
	if c.Dial.Endpoint == "" {
		return errors.New("endpoint is not set")
	}
	switch c.Chat.Client {
	case ClientSDK, ClientHTTP:
	default:
		return fmt.Errorf("unsupported client %q (want %q or %q)", c.Chat.Client, ClientSDK, ClientHTTP)
	}
	return nil
}
