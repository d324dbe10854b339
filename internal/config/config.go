// Package config loads the user's settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbegin/webdaw-go/internal/song"
)

type Config struct {
	SampleRate int     `json:"sampleRate"`
	BPM        float64 `json:"bpm"`
	// Latency is the scheduling lead in seconds.
	Latency    float64 `json:"latency"`
	SampleDir  string  `json:"sampleDir,omitempty"`
	StorageDir string  `json:"storageDir,omitempty"`
	StorageKey string  `json:"storageKey"`
	LogLevel   string  `json:"logLevel"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 48000,
		BPM:        song.DefaultBPM,
		Latency:    0.1,
		StorageKey: song.DefaultKey,
		LogLevel:   "info",
	}
}

// Path is ~/.config/webdaw/config.json.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "webdaw", "config.json"), nil
}

// Load reads the file at path. A missing file yields the defaults; fields
// absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.fill()
	return cfg, nil
}

// Save writes cfg to path, creating its directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (c *Config) fill() {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.BPM <= 0 {
		c.BPM = def.BPM
	}
	if c.Latency < 0 {
		c.Latency = def.Latency
	}
	if c.StorageKey == "" {
		c.StorageKey = def.StorageKey
	}
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return l
}
