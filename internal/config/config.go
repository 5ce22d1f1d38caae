package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "MDTOGETHER"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "markdowntogether.db"
	defaultLogLevel            = "info"
	defaultSendBuffer          = 256
	defaultHighlightTTLSeconds = 2
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	SendBuffer   int
	HighlightTTL time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("hub.send_buffer", defaultSendBuffer)
	configViper.SetDefault("presence.highlight_ttl_s", defaultHighlightTTLSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		SendBuffer:   configViper.GetInt("hub.send_buffer"),
		HighlightTTL: time.Duration(configViper.GetInt("presence.highlight_ttl_s")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	if c.HighlightTTL <= 0 {
		return fmt.Errorf("presence.highlight_ttl_s must be positive")
	}
	return nil
}
