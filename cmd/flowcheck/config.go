package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Config holds all flowcheck configuration.
// Priority: flags > env vars > settings file > defaults.
type Config struct {
	// Catalog is the libSQL database holding node descriptors. Empty means
	// the builtin catalog.
	Catalog          string `json:"catalog" yaml:"catalog"`
	LogLevel         string `json:"log_level" yaml:"log_level"`
	LogFormat        string `json:"log_format" yaml:"log_format"`
	// Profile overrides the rule profile of every command. Empty keeps each
	// command's own default.
	Profile          string `json:"profile" yaml:"profile"`
	RulesFile        string `json:"rules_file" yaml:"rules_file"`
	MetricsAddr      string `json:"metrics_addr" yaml:"metrics_addr"`
	FetchConcurrency int    `json:"fetch_concurrency" yaml:"fetch_concurrency"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:         "info",
		LogFormat:        "text",
		FetchConcurrency: catalog.DefaultFetchConcurrency,
	}
}

func flowcheckDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowcheck"
	}
	return filepath.Join(home, ".flowcheck")
}

// settingsPaths lists the settings files tried when none is named, in order.
func settingsPaths() []string {
	dir := flowcheckDir()
	return []string{
		filepath.Join(dir, "settings.yaml"),
		filepath.Join(dir, "settings.yml"),
		filepath.Join(dir, "settings.json"),
	}
}

// loadConfig layers defaults, the settings file and FLOWCHECK_* variables.
// An explicitly named file must exist; the default files are optional.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings file.
	if path != "" {
		if err := readSettings(path, &cfg); err != nil {
			return cfg, err
		}
	} else {
		for _, p := range settingsPaths() {
			err := readSettings(p, &cfg)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return cfg, err
			}
			break
		}
	}

	// Layer 3: env vars override.
	if v := getenv("FLOWCHECK_CATALOG"); v != "" {
		cfg.Catalog = v
	}
	if v := getenv("FLOWCHECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("FLOWCHECK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("FLOWCHECK_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := getenv("FLOWCHECK_RULES_FILE"); v != "" {
		cfg.RulesFile = v
	}
	if v := getenv("FLOWCHECK_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := getenv("FLOWCHECK_FETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, schema.NewErrorf(schema.ErrCodeValidation, "FLOWCHECK_FETCH_CONCURRENCY: %q is not a number", v)
		}
		cfg.FetchConcurrency = n
	}
	return cfg, nil
}

// readSettings decodes a settings file over cfg. The format follows the
// extension; anything but .json is read as YAML.
func readSettings(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeDecode, "settings file %s: %s", path, err.Error()).WithCause(err)
	}
	return nil
}

// catalogDSN turns a configured catalog path into a libSQL data source name.
func catalogDSN(path string) string {
	if strings.Contains(path, ":") && !filepath.IsAbs(path) && !isWindowsPath(path) {
		return path
	}
	return "file:" + path
}

func isWindowsPath(p string) bool {
	return len(p) > 2 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}
