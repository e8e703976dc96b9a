// Package config loads the installer's yaml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Devices  Devices  `yaml:"devices"`
	Firmware Firmware `yaml:"firmware"`
	Journal  Journal  `yaml:"journal"`
	Download Download `yaml:"download"`

	// SDRoot is the directory the mounted FAT volume is visible under.
	SDRoot string `yaml:"sd_root"`
	// SLCRoot stands in for /vol/storage_slc.
	SLCRoot string `yaml:"slc_root"`

	PollInterval      time.Duration `yaml:"poll_interval"`
	DefaultFATPercent int           `yaml:"default_fat_percent"`
}

// Devices maps the logical drives onto host block devices or image files.
type Devices struct {
	SD       string `yaml:"sd"`
	USB      string `yaml:"usb"`
	DirectIO bool   `yaml:"direct_io"`
}

type Firmware struct {
	// State is a yaml file persisting the patched kernel words.
	State string `yaml:"state"`
}

type Journal struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type Download struct {
	// BaseURLs overrides the release URL of an artifact, keyed by file name.
	BaseURLs      map[string]string `yaml:"base_urls,omitempty"`
	PluginListURL string            `yaml:"plugin_list_url"`
	Timeout       time.Duration     `yaml:"timeout"`
}

var defaultConfig = Config{
	Devices: Devices{
		SD:  "sd.img",
		USB: "usb.img",
	},
	Firmware: Firmware{State: "firmware.yaml"},
	Journal:  Journal{Path: filepath.Join(os.Getenv("HOME"), ".local/share/wafel-installer/journal.db")},
	Download: Download{
		PluginListURL: "https://raw.githubusercontent.com/zer00p/ISFShax-Loader/main/plugins.csv",
		Timeout:       2 * time.Minute,
	},
	SDRoot:            "sd",
	SLCRoot:           "slc",
	PollInterval:      100 * time.Millisecond,
	DefaultFATPercent: 80,
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Candidates are the locations searched when no explicit path is given.
func Candidates() []string {
	return []string{
		"/etc/wafel-installer/config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/wafel-installer/config.yaml"),
		"config.yaml",
	}
}

// Load reads path, or the first candidate that exists, and fills every
// unset field from the defaults. A missing file yields the defaults; an
// explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		for _, c := range Candidates() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.Devices.SD == "" {
		cfg.Devices.SD = defaultConfig.Devices.SD
	}
	if cfg.Devices.USB == "" {
		cfg.Devices.USB = defaultConfig.Devices.USB
	}
	if cfg.Firmware.State == "" {
		cfg.Firmware.State = defaultConfig.Firmware.State
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaultConfig.Journal.Path
	}
	if cfg.Download.PluginListURL == "" {
		cfg.Download.PluginListURL = defaultConfig.Download.PluginListURL
	}
	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = defaultConfig.Download.Timeout
	}
	if cfg.SDRoot == "" {
		cfg.SDRoot = defaultConfig.SDRoot
	}
	if cfg.SLCRoot == "" {
		cfg.SLCRoot = defaultConfig.SLCRoot
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultConfig.PollInterval
	}
	if cfg.DefaultFATPercent == 0 {
		cfg.DefaultFATPercent = defaultConfig.DefaultFATPercent
	}
	if cfg.DefaultFATPercent < 1 || cfg.DefaultFATPercent > 100 {
		return nil, fmt.Errorf("default_fat_percent must be within 1..100, got %d", cfg.DefaultFATPercent)
	}

	return &cfg, nil
}
