package configuration

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/finlens/copilot/internal/file"
)

var defaultConfig = Config{
	BackendHost:    "https://copilot.finlens.dev",
	BackendAPIKey:  "API_KEY",
	RequestTimeout: 60,
	Database:       "~/.config/copilot/sessions.db",
	LogFile:        "~/.config/copilot/copilot.log",

	Plan: &PlanConfig{
		Tier:       "starter",
		DailyLimit: 50,
	},
}

// Config holds configuration for the copilot tool.
type Config struct {
	BackendHost    string `json:"backend_host"`
	BackendAPIKey  string `json:"backend_api_key"`
	RequestTimeout int    `json:"request_timeout"`
	Database       string `json:"database"`
	LogFile        string `json:"log_file"`

	Plan *PlanConfig `json:"plan"`
}

// PlanConfig holds the caller's plan, used as the fallback when a quota
// error omits its structured detail.
type PlanConfig struct {
	// Tier of the current plan.
	Tier string `json:"tier"`
	// Daily chat turn limit of the plan.
	DailyLimit int `json:"daily_limit"`
}

// Parse a configuration file.
func Parse(path string) (*Config, error) {
	path, err := file.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "expanding path")
	}

	if err := initializeIfNotPresent(path); err != nil {
		return nil, errors.Wrap(err, "initializing configuration")
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}

	config := &Config{}
	if err = json.Unmarshal(bytes, config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling into config")
	}
	if config.Plan == nil {
		config.Plan = defaultConfig.Plan
	}

	expandedDatabasePath, err := file.ExpandPath(config.Database)
	if err != nil {
		return nil, errors.Wrap(err, "expanding database path")
	}
	config.Database = expandedDatabasePath

	expandedLogFilePath, err := file.ExpandPath(config.LogFile)
	if err != nil {
		return nil, errors.Wrap(err, "expanding log file path")
	}
	config.LogFile = expandedLogFilePath
	return config, nil
}

// save a configuration file.
func (c *Config) save(path string) error {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	err = os.WriteFile(path, bytes, 0644)
	if err != nil {
		return errors.Wrap(err, "writing file")
	}

	return nil
}

// initializeIfNotPresent initializes a config if it does not exist.
func initializeIfNotPresent(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	// Create the directories.
	dir, _ := filepath.Split(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating folders")
	}

	if err := defaultConfig.save(path); err != nil {
		return errors.Wrap(err, "saving default config")
	}
	return nil
}
