package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the applogic CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   "file:" + filepath.Join(applogicDir(), "applogic.db"),
		LogLevel: "info",
	}
}

func applogicDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".applogic"
	}
	return filepath.Join(home, ".applogic")
}

func settingsPath() string {
	return filepath.Join(applogicDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("APPLOGIC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("APPLOGIC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
