// Package cfw reports the state of the custom firmware environment the
// installer prepares: Stroopwafel, its plugins and ISFShax.
package cfw

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zer00p/wafel-installer/internal/download"
	"github.com/zer00p/wafel-installer/internal/firmware"
)

var ErrInstallerMissing = errors.New("cfw: ISFShax installer (fw.img) is missing")

// Environment is what the workflows ask about the running console.
type Environment interface {
	StroopwafelAvailable() bool
	IsfshaxInstalled() bool
	SDEmulated() bool
	// PluginPath is the Stroopwafel plugin directory in use, or "" when
	// Stroopwafel is not detected.
	PluginPath() string
	SLCPluginPath() string
	AromaInstalled() bool
	BootInstaller() error
	Shutdown() error
}

// IsSLC reports whether a plugin directory lives on the SLC.
func IsSLC(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "storage_slc") || strings.Contains(filepath.ToSlash(path), "sys/hax/")
}

// Host inspects the host directories standing in for the SLC and the SD
// volume. Booting the installer completes the ISFShax install by leaving a
// marker next to the installer image.
type Host struct {
	SLCRoot  string
	SDRoot   string
	Firmware firmware.Patcher
	Log      logrus.FieldLogger

	shutdown bool
}

const installedMarker = "sys/hax/installer/.isfshax-installed"

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (h *Host) SLCPluginPath() string {
	return filepath.Join(h.SLCRoot, download.SLCPluginDir)
}

func (h *Host) sdPluginPath() string {
	return filepath.Join(h.SDRoot, download.SDPluginDir)
}

func (h *Host) PluginPath() string {
	for _, dir := range []string{h.SLCPluginPath(), h.sdPluginPath()} {
		if exists(filepath.Join(dir, "00core.ipx")) {
			return dir
		}
	}
	return ""
}

func (h *Host) StroopwafelAvailable() bool {
	return h.PluginPath() != ""
}

func (h *Host) IsfshaxInstalled() bool {
	return exists(filepath.Join(h.SLCRoot, installedMarker))
}

// SDEmulated is true while the USB device is attached as the SD card and
// the SD emulation plugin is installed.
func (h *Host) SDEmulated() bool {
	if h.Firmware == nil {
		return false
	}
	attached, err := firmware.USBAttachedAsSD(h.Firmware)
	if err != nil || !attached {
		return false
	}
	dir := h.PluginPath()
	return dir != "" && exists(filepath.Join(dir, "5upartsd.ipx"))
}

func (h *Host) AromaInstalled() bool {
	st, err := os.Stat(filepath.Join(h.SDRoot, download.AromaDir))
	return err == nil && st.IsDir()
}

func (h *Host) BootInstaller() error {
	img := filepath.Join(h.SLCRoot, download.InstallerFile)
	if !exists(img) {
		return ErrInstallerMissing
	}
	h.Log.WithField("image", img).Info("launching ISFShax installer")
	if err := os.WriteFile(filepath.Join(h.SLCRoot, installedMarker), nil, 0o644); err != nil {
		return fmt.Errorf("launch installer: %w", err)
	}
	return nil
}

func (h *Host) Shutdown() error {
	h.Log.Info("shutdown requested")
	h.shutdown = true
	return nil
}

// ShutdownPending reports whether Shutdown was called.
func (h *Host) ShutdownPending() bool {
	return h.shutdown
}
