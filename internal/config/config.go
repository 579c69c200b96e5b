package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/maloquacious/telesync/internal/fields"
)

type BackupConfig struct {
	Enabled bool `json:"enabled"`
}

type IDConfig struct {
	MachineIDSource string `json:"machine_id_source"`
	SqmUpper        bool   `json:"sqm_upper"`
	SqmBraces       bool   `json:"sqm_braces"`
}

// PurgeConfig holds named groups of LIKE patterns. Only groups listed in
// EnabledGroups are applied unless a group is requested explicitly.
type PurgeConfig struct {
	Patterns      map[string][]string `json:"patterns"`
	EnabledGroups []string            `json:"enabled_groups"`
}

type Config struct {
	Products            []string     `json:"products"`
	ExtraRoots          []string     `json:"extra_roots"`
	Backup              BackupConfig `json:"backup"`
	Lock                bool         `json:"lock"`
	StoreTimeoutSeconds int          `json:"store_timeout_seconds"`
	IDs                 IDConfig     `json:"ids"`
	Purge               PurgeConfig  `json:"purge"`
	// CheckEditorRunning refuses committed writes while a configured editor
	// is running, unless forced.
	CheckEditorRunning bool `json:"check_editor_running"`
}

var defaultProducts = []string{"Code", "Code - Insiders", "VSCodium", "Cursor"}

func DefaultConfig() Config {
	return Config{
		Products:            append([]string(nil), defaultProducts...),
		Backup:              BackupConfig{Enabled: true},
		Lock:                true,
		StoreTimeoutSeconds: 30,
		IDs:                 IDConfig{MachineIDSource: string(fields.SourceRandom)},
		Purge: PurgeConfig{
			Patterns: map[string][]string{
				"augment":    {"%augment%", "%context7%"},
				"telemetry":  {"%telemetry%", "%machineId%", "%deviceId%", "%sqmId%"},
				"extensions": {"%augment.%", "%context7.%"},
				"custom":     {},
			},
			EnabledGroups: []string{"augment"},
		},
		CheckEditorRunning: true,
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "telesync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "telesync")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads path over the defaults. A missing file is not an error.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(cfg.Products) == 0 {
		cfg.Products = append([]string(nil), defaultProducts...)
	}
	if cfg.StoreTimeoutSeconds <= 0 {
		cfg.StoreTimeoutSeconds = 30
	}
	switch fields.MachineIDSource(cfg.IDs.MachineIDSource) {
	case fields.SourceRandom, fields.SourceSHA256:
	default:
		cfg.IDs.MachineIDSource = string(fields.SourceRandom)
	}
	if cfg.Purge.Patterns == nil {
		cfg.Purge.Patterns = DefaultConfig().Purge.Patterns
	}
	cfg.Products = lo.Uniq(lo.Compact(cfg.Products))

	return cfg, nil
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// StoreTimeout bounds a single store operation.
func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// Generator builds the identity generator the config describes.
func (c Config) Generator() fields.Generator {
	return fields.Generator{
		MachineIDSource: fields.MachineIDSource(c.IDs.MachineIDSource),
		SqmUpper:        c.IDs.SqmUpper,
		SqmBraces:       c.IDs.SqmBraces,
	}
}

// PurgePatterns returns the de-duplicated patterns of groups, or of the
// enabled groups when none are named. Unknown group names are an error.
func (c Config) PurgePatterns(groups ...string) ([]string, error) {
	if len(groups) == 0 {
		groups = c.Purge.EnabledGroups
	}
	var out []string
	for _, g := range groups {
		patterns, ok := c.Purge.Patterns[g]
		if !ok {
			known := lo.Keys(c.Purge.Patterns)
			sort.Strings(known)
			return nil, fmt.Errorf("unknown purge group %q (known: %v)", g, known)
		}
		out = append(out, patterns...)
	}
	return lo.Uniq(lo.Compact(out)), nil
}
