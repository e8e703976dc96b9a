package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
devices:
  usb: /dev/sdb
  direct_io: true
poll_interval: 50ms
download:
  base_urls:
    00core.ipx: http://mirror.local/00core.ipx
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/sdb", cfg.Devices.USB)
	assert.True(t, cfg.Devices.DirectIO)
	assert.Equal(t, defaultConfig.Devices.SD, cfg.Devices.SD)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 80, cfg.DefaultFATPercent)
	assert.Equal(t, "http://mirror.local/00core.ipx", cfg.Download.BaseURLs["00core.ipx"])
	assert.Equal(t, defaultConfig.Download.Timeout, cfg.Download.Timeout)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing explicit file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{"bad yaml", func(t *testing.T) string { return writeConfig(t, "devices: [") }},
		{"percent out of range", func(t *testing.T) string { return writeConfig(t, "default_fat_percent: 101") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			assert.Error(t, err)
		})
	}
}

func TestDefaultIsCopy(t *testing.T) {
	a := Default()
	a.SDRoot = "changed"
	assert.Equal(t, "sd", Default().SDRoot)
}
