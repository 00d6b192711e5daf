// Package config loads the channel-set description used by the simbridge
// CLI to bring up several sockets from one file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var (
	ErrNoChannels       = errors.New("config: no channels defined")
	ErrInvalidChannel   = errors.New("config: invalid channel")
	ErrDuplicateChannel = errors.New("config: duplicate channel name")
)

// Channel describes one bridged socket.
type Channel struct {
	Name  string `toml:"name"`
	Port  int    `toml:"port"`
	Block int    `toml:"block"`
}

// BridgeConfig is the full channel-set file.
type BridgeConfig struct {
	HTTPAddr  string        `toml:"http_addr"`
	PollEvery time.Duration `toml:"-"`
	Channels  []Channel     `toml:"channels"`
}

type fileConfig struct {
	HTTPAddr  string    `toml:"http_addr"`
	PollEvery string    `toml:"poll_every"`
	Channels  []Channel `toml:"channels"`
}

// DefaultBridgeConfig returns the defaults applied before file overrides.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		PollEvery: 200 * time.Microsecond,
	}
}

// LoadBridgeConfig reads and validates a channel-set file.
func LoadBridgeConfig(path string) (BridgeConfig, error) {
	cfg := DefaultBridgeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return BridgeConfig{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("poll_every") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollEvery))
		if err != nil {
			return BridgeConfig{}, fmt.Errorf("config: parse poll_every: %w", err)
		}
		cfg.PollEvery = d
	}
	cfg.Channels = raw.Channels

	if err := Validate(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

// Validate checks a channel set for structural problems.
func Validate(cfg BridgeConfig) error {
	if len(cfg.Channels) == 0 {
		return ErrNoChannels
	}
	seen := make(map[string]struct{}, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			return fmt.Errorf("%w: channels[%d] missing name", ErrInvalidChannel, i)
		}
		if ch.Port < 0 || ch.Port > 65535 {
			return fmt.Errorf("%w: channels[%d] port %d out of range", ErrInvalidChannel, i, ch.Port)
		}
		if ch.Block < 0 {
			return fmt.Errorf("%w: channels[%d] negative block size", ErrInvalidChannel, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateChannel, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
