// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultDecodeCache     = 64 * 1024
	defaultMaxInstructions = 10_000_000
)

type trace struct {
	Output      string `mapstructure:"output"`
	Compress    bool   `mapstructure:"compress"`
	StrictEdges bool   `mapstructure:"strict_edges"`
	DecodeCache int    `mapstructure:"decode_cache"`
}

type emu struct {
	Firmware        string        `mapstructure:"firmware"`
	MaxInstructions uint64        `mapstructure:"max_instructions"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Workers         int           `mapstructure:"workers"`
}

// Config is the configuration struct
type Config struct {
	Trace trace `mapstructure:"trace"`
	Emu   emu   `mapstructure:"emu"`
}

// SetDefaults registers the default values with viper
func SetDefaults() {
	viper.SetDefault("trace.decode_cache", defaultDecodeCache)
	viper.SetDefault("emu.max_instructions", defaultMaxInstructions)
	viper.SetDefault("emu.timeout", "0s")
	viper.SetDefault("emu.workers", 0)
}

func (c *Config) verify() error {
	if c.Trace.DecodeCache < 0 {
		return fmt.Errorf("config: trace.decode_cache must not be negative")
	} else if c.Trace.DecodeCache == 0 {
		c.Trace.DecodeCache = defaultDecodeCache
	}

	if c.Emu.Workers < 0 {
		return fmt.Errorf("config: emu.workers must not be negative")
	} else if c.Emu.Workers == 0 {
		c.Emu.Workers = runtime.NumCPU()
	}
	if c.Emu.Timeout < 0 {
		return fmt.Errorf("config: emu.timeout must not be negative")
	}

	for _, path := range []*string{&c.Trace.Output, &c.Emu.Firmware} {
		if strings.HasPrefix(*path, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("config: failed to get user home directory: %v", err)
			}
			*path = filepath.Join(home, (*path)[2:])
		}
	}

	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
