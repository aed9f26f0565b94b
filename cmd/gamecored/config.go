package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roasbeef/gamecore/internal/build"
)

// Config is the daemon configuration, loadable from a YAML file with
// flag overrides applied on top.
type Config struct {
	// DBPath is the sqlite database file path.
	DBPath string `yaml:"db_path"`

	// LogDir is the directory for rotated log files; empty disables
	// file logging.
	LogDir string `yaml:"log_dir"`

	// MaxLogFiles is the number of rotated log files to keep.
	MaxLogFiles int `yaml:"max_log_files"`

	// MaxLogFileSize is the log file size in MB before rotation.
	MaxLogFileSize int `yaml:"max_log_file_size"`

	// Debug enables the development-mode call guard and verbose
	// logging.
	Debug bool `yaml:"debug"`

	// HotfixDir, when set, is watched for changes that trigger a
	// logic reload.
	HotfixDir string `yaml:"hotfix_dir"`

	// IdleScanInterval is how often the idle reaper runs.
	IdleScanInterval time.Duration `yaml:"idle_scan_interval"`

	// TimerSaveInterval is how often the batched save runs.
	TimerSaveInterval time.Duration `yaml:"timer_save_interval"`

	// CrossDayCheckInterval is how often the day rollover check runs.
	CrossDayCheckInterval time.Duration `yaml:"cross_day_check_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:                "~/.gamecore/gamecore.db",
		LogDir:                "~/.gamecore/logs",
		MaxLogFiles:           build.DefaultMaxLogFiles,
		MaxLogFileSize:        build.DefaultMaxLogFileSize,
		IdleScanInterval:      time.Minute,
		TimerSaveInterval:     5 * time.Minute,
		CrossDayCheckInterval: 30 * time.Second,
	}
}

// LoadConfigFile merges the YAML file at path over cfg. A missing file
// is an error; call sites only pass paths the operator supplied.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

// expandHome expands a leading ~ and any environment variables in path.
func expandHome(path string) (string, error) {
	expanded := os.ExpandEnv(path)
	if len(expanded) > 0 && expanded[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home "+
				"directory: %w", err)
		}
		expanded = home + expanded[1:]
	}

	return expanded, nil
}
