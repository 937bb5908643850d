package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML config file shape. Flags override file values.
type fileConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *fileConfig) merge(username, password, dbPath, logLevel string) {
	if username != "" {
		c.Username = username
	}
	if password != "" {
		c.Password = password
	}
	if dbPath != "" {
		c.DBPath = dbPath
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}
