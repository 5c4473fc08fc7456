// Package config loads runtime settings from an optional .env file, an
// optional YAML file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when present; a missing default file is not an error.
const DefaultEnvFile = ".env"

// Config holds everything the CLI needs to mount and run a session.
type Config struct {
	MountPoint   string        `yaml:"mount" env:"UNDOFS_MOUNT" env-default:"memdir" env-description:"directory the store is mounted on"`
	LogLevel     string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO" env-description:"ERROR, WARN, INFO, DEBUG or TRACE"`
	UID          int           `yaml:"uid" env:"PUID" env-default:"-1" env-description:"owner uid for new entries"`
	GID          int           `yaml:"gid" env:"PGID" env-default:"-1" env-description:"owner gid for new entries"`
	Shell        string        `yaml:"shell" env:"UNDOFS_SHELL" env-default:"/bin/sh" env-description:"shell used to run session commands"`
	Prompt       string        `yaml:"prompt" env:"UNDOFS_PROMPT" env-default:"undoshell: " env-description:"session prompt"`
	MountTimeout time.Duration `yaml:"mount_timeout" env:"UNDOFS_MOUNT_TIMEOUT" env-default:"3s" env-description:"how long to wait for the mount to appear"`
	MaxFileSize  string        `yaml:"max_file_size" env:"UNDOFS_MAX_FILE_SIZE" env-default:"64MiB" env-description:"largest file the store accepts, e.g. 64MiB"`

	// MaxFileBytes is MaxFileSize parsed by Load.
	MaxFileBytes int64 `yaml:"-"`
}

// Load builds a Config. envFile and configPath may be empty.
func Load(envFile, configPath string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	var cfg Config
	if configPath != "" {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("(config) reading %s: %w", configPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("(config) reading environment: %w", err)
	}

	if int64(cfg.UID) > math.MaxUint32 {
		return nil, fmt.Errorf("(config) uid %d out of range", cfg.UID)
	}
	if int64(cfg.GID) > math.MaxUint32 {
		return nil, fmt.Errorf("(config) gid %d out of range", cfg.GID)
	}
	if cfg.UID < 0 {
		cfg.UID = os.Getuid()
	}
	if cfg.GID < 0 {
		cfg.GID = os.Getgid()
	}
	if cfg.MountTimeout <= 0 {
		return nil, fmt.Errorf("(config) mount timeout must be positive, got %v", cfg.MountTimeout)
	}
	size, err := humanize.ParseBytes(cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("(config) max file size: %w", err)
	}
	if size == 0 || size > math.MaxInt64 {
		return nil, fmt.Errorf("(config) max file size %q out of range", cfg.MaxFileSize)
	}
	cfg.MaxFileBytes = int64(size)
	return &cfg, nil
}

// Owner returns the configured uid/gid, clamped to the unsigned range.
func (c *Config) Owner() (uint32, uint32) {
	return clampID(c.UID), clampID(c.GID)
}

// Usage describes the recognized environment variables.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return desc
}

func loadEnvFile(name string) error {
	explicit := name != ""
	if !explicit {
		name = DefaultEnvFile
	}
	err := godotenv.Load(name)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("(config-godotenv) %w", err)
}

func clampID(n int) uint32 {
	if n < 0 {
		return 0
	}
	if int64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}
