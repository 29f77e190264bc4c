package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the workroomd configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Terminal TerminalConfig `yaml:"terminal"`
	Channel  ChannelConfig  `yaml:"channel"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type TerminalConfig struct {
	Shell          string        `yaml:"shell"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type ChannelConfig struct {
	// InboundBytesPerSec meters inbound channel traffic per attachment.
	// Zero disables metering.
	InboundBytesPerSec int `yaml:"inbound_bytes_per_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "workroom.db"},
		Terminal: TerminalConfig{Shell: "/bin/bash", CommandTimeout: 30 * time.Second},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a file, applying defaults and environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if addr := os.Getenv("WORKROOM_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if db := os.Getenv("WORKROOM_DB"); db != "" {
		cfg.Database.Path = db
	}
	if shell := os.Getenv("WORKROOM_SHELL"); shell != "" {
		cfg.Terminal.Shell = shell
	}
	if level := os.Getenv("WORKROOM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if cfg.Terminal.CommandTimeout <= 0 {
		cfg.Terminal.CommandTimeout = 30 * time.Second
	}
	return cfg, nil
}
