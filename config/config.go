// Package config loads engine configuration — the on-disk data directory,
// catalog file path, page size, and log file/level — from an HCL file via
// hcl.Decode into a generic map[string]interface{}, then validated field
// by field into a fixed struct, since this engine's configuration surface
// is small and static rather than a server's per-session-tunable parameter
// set.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl"
)

// Config is the engine's full static configuration.
type Config struct {
	DataDir     string
	CatalogFile string
	PageSize    uint32
	LogFile     string
	LogLevel    string
}

// Default returns the configuration a fresh install runs with before any
// config file is loaded.
func Default() Config {
	return Config{
		DataDir:     "data",
		CatalogFile: "catalog.hcl",
		PageSize:    4096,
		LogLevel:    "info",
	}
}

// Load reads path as HCL, overriding Default()'s fields with whatever it
// finds. A missing file is not an error: Load just returns Default().
func Load(path string) (Config, error) {
	cfg := Default()

	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}

	var raw map[string]interface{}
	if err := hcl.Decode(&raw, string(buf)); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	for name, val := range raw {
		switch name {
		case "data_dir":
			s, ok := val.(string)
			if !ok {
				return Config{}, fmt.Errorf("config: data_dir: expected string, got %T", val)
			}
			cfg.DataDir = s
		case "catalog_file":
			s, ok := val.(string)
			if !ok {
				return Config{}, fmt.Errorf("config: catalog_file: expected string, got %T", val)
			}
			cfg.CatalogFile = s
		case "page_size":
			n, err := toUint32(val)
			if err != nil {
				return Config{}, fmt.Errorf("config: page_size: %w", err)
			}
			cfg.PageSize = n
		case "log_file":
			s, ok := val.(string)
			if !ok {
				return Config{}, fmt.Errorf("config: log_file: expected string, got %T", val)
			}
			cfg.LogFile = s
		case "log_level":
			s, ok := val.(string)
			if !ok {
				return Config{}, fmt.Errorf("config: log_level: expected string, got %T", val)
			}
			cfg.LogLevel = s
		default:
			return Config{}, fmt.Errorf("config: %s is not a config variable", name)
		}
	}
	return cfg, nil
}

func toUint32(v interface{}) (uint32, error) {
	switch vv := v.(type) {
	case int:
		return uint32(vv), nil
	case int64:
		return uint32(vv), nil
	case float64:
		return uint32(vv), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
