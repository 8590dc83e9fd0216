// Package config loads repository settings from YAML or JSON files and
// watches them for changes.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/IvanBrykalov/resrepo/weight"
)

// Format is a configuration file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Policy names accepted in the policy setting.
const (
	PolicyLRU = "lru"
	Policy2Q  = "2q"
)

// Config holds the settings of one repository and its host process.
type Config struct {
	// MaxWeight is the eviction ceiling ("2GiB", "512 MB" or plain bytes).
	MaxWeight string `koanf:"max_weight"`
	// LowWeightRatio sets the low-water mark as a fraction of MaxWeight.
	LowWeightRatio float64 `koanf:"low_weight_ratio"`
	// Shards of the key table; 0 picks a value from GOMAXPROCS.
	Shards int `koanf:"shards"`
	// Policy is "lru" or "2q".
	Policy string `koanf:"policy"`
	// Ghosts bounds the 2Q ghost list.
	Ghosts int `koanf:"ghosts"`

	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Default returns the settings used for anything a source leaves out.
func Default() Config {
	return Config{
		MaxWeight:      "1GiB",
		LowWeightRatio: 0.8,
		Policy:         PolicyLRU,
		Ghosts:         1024,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads path, picking the format from its extension.
func Load(path string) (Config, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newErrLoad(path, err)
	}
	return Parse(data, format)
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, newErrInvalid("format", string(format), "unsupported format")
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, newErrLoad(string(format), err)
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, newErrLoad(string(format), err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", newErrInvalid("path", path, fmt.Sprintf("unknown extension %q", ext))
	}
}

// Validate checks every setting.
func (c Config) Validate() error {
	if _, _, err := c.Limits(); err != nil {
		return err
	}
	if c.Shards < 0 {
		return newErrInvalid("shards", c.Shards, "must not be negative")
	}
	switch c.Policy {
	case PolicyLRU, Policy2Q:
	default:
		return newErrInvalid("policy", c.Policy, "must be lru or 2q")
	}
	if c.Policy == Policy2Q && c.Ghosts < 1 {
		return newErrInvalid("ghosts", c.Ghosts, "must be positive for 2q")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return newErrInvalid("log_format", c.LogFormat, "must be text or json")
	}
	return nil
}

// Limits returns the ceiling and the low-water mark.
func (c Config) Limits() (max, low weight.Space, err error) {
	max, err = weight.ParseSpace(c.MaxWeight)
	if err != nil {
		return 0, 0, newErrInvalid("max_weight", c.MaxWeight, err.Error())
	}
	if max <= 0 {
		return 0, 0, newErrInvalid("max_weight", c.MaxWeight, "must be positive")
	}
	if c.LowWeightRatio <= 0 || c.LowWeightRatio > 1 {
		return 0, 0, newErrInvalid("low_weight_ratio", c.LowWeightRatio, "must be in (0, 1]")
	}
	return max, weight.Space(float64(max) * c.LowWeightRatio), nil
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, newErrInvalid("log_level", c.LogLevel, err.Error())
	}
	return l, nil
}

// NewLogger builds a slog logger writing to w per LogLevel and LogFormat.
// The level is read through lv so it can be changed on reload.
func (c Config) NewLogger(w io.Writer, lv *slog.LevelVar) *slog.Logger {
	if l, err := c.Level(); err == nil {
		lv.Set(l)
	}
	opts := &slog.HandlerOptions{Level: lv}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
