// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Explore ExploreConfig `toml:"explore"`
	Log     LogConfig     `toml:"log"`
	Serve   ServeConfig   `toml:"serve"`
	Evdev   EvdevConfig   `toml:"evdev"`
}

// ExploreConfig maps controller thresholds.
type ExploreConfig struct {
	DoubleTapTimeout  *Duration `toml:"double-tap-timeout"`
	TouchSlop         *float64  `toml:"touch-slop"`
	AnnounceSingleTap *bool     `toml:"announce-single-tap"`
	Strict            *bool     `toml:"strict"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	Dir   *string `toml:"dir"`
}

// ServeConfig maps the websocket server settings.
type ServeConfig struct {
	Addr      *string `toml:"addr"`
	Advertise *bool   `toml:"advertise"`
}

// EvdevConfig maps the Linux input device settings.
type EvdevConfig struct {
	Device *string  `toml:"device"`
	Grab   *bool    `toml:"grab"`
	Width  *float64 `toml:"width"`
	Height *float64 `toml:"height"`
}

// Duration decodes TOML strings such as "300ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// WriteConfig encodes cfg as TOML to path, creating parent directories.
func WriteConfig(path string, cfg FileConfig) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if err := EncodeConfig(f, cfg); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close config: %w", err)
	}
	return nil
}

// EncodeConfig writes cfg as TOML. Unset keys are omitted.
func EncodeConfig(w io.Writer, cfg FileConfig) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
