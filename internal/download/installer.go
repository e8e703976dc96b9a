package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	StroopwafelCore  = "https://github.com/StroopwafelCFW/stroopwafel/releases/latest/download/00core.ipx"
	IsfshaxPatch     = "https://github.com/isfshax/wafel_isfshax_patch/releases/latest/download/5isfshax.ipx"
	USBPartitionBase = "https://github.com/StroopwafelCFW/wafel_usb_partition/releases/latest/download/"
	Payloader        = "https://github.com/StroopwafelCFW/wafel_payloader/releases/latest/download/5payldr.ipx"
	MinuteFastboot   = "https://github.com/StroopwafelCFW/minute_minute/releases/latest/download/fw_fastboot.img"
	Superblock       = "https://github.com/isfshax/isfshax/releases/latest/download/superblock.img"
	SuperblockSHA    = "https://github.com/isfshax/isfshax/releases/latest/download/superblock.img.sha"
	IsfshaxInstaller = "https://github.com/isfshax/isfshax_installer/releases/latest/download/ios.img"
	AromaArchive     = "https://github.com/wiiu-env/Aroma/releases/latest/download/aroma.zip"
)

// Locations below the SLC and SD roots.
const (
	HaxDir        = "sys/hax"
	InstallerDir  = "sys/hax/installer"
	SLCPluginDir  = "sys/hax/ios_plugins"
	SDPluginDir   = "wiiu/ios_plugins"
	AromaDir      = "wiiu/environments/aroma"
	InstallerFile = "sys/hax/installer/fw.img"
)

var ErrSLCUnavailable = errors.New("download: SLC is not accessible")

type artifact struct {
	url  string
	path string
}

// Installer places artifacts at their target locations. SLCRoot and SDRoot
// are the host directories standing in for /vol/storage_slc and the mounted
// SD volume.
type Installer struct {
	Client  *Client
	SLCRoot string
	SDRoot  string
}

func (in *Installer) createHaxDirectories() error {
	if st, err := os.Stat(in.SLCRoot); err != nil || !st.IsDir() {
		return fmt.Errorf("%w: %s", ErrSLCUnavailable, in.SLCRoot)
	}
	for _, dir := range []string{HaxDir, InstallerDir, SLCPluginDir} {
		path := filepath.Join(in.SLCRoot, dir)
		in.Client.print("Create directory %s.", path)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

func (in *Installer) fetch(ctx context.Context, set []artifact) error {
	for _, a := range set {
		if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
			return err
		}
		if err := in.Client.File(ctx, a.url, a.path); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) slc(rel string) string { return filepath.Join(in.SLCRoot, rel) }

// HaxFiles downloads the full Stroopwafel, minute and ISFShax set to the SLC.
func (in *Installer) HaxFiles(ctx context.Context) error {
	if err := in.createHaxDirectories(); err != nil {
		return err
	}
	if err := in.fetch(ctx, append(in.stroopwafelSet(false), in.isfshaxSet()...)); err != nil {
		return err
	}
	return in.verifySuperblock()
}

// InstallerOnly downloads just the ISFShax installer image.
func (in *Installer) InstallerOnly(ctx context.Context) error {
	if err := in.createHaxDirectories(); err != nil {
		return err
	}
	return in.fetch(ctx, []artifact{{IsfshaxInstaller, in.slc(InstallerFile)}})
}

// IsfshaxFiles downloads the superblock, its checksum and the installer,
// and verifies the superblock.
func (in *Installer) IsfshaxFiles(ctx context.Context) error {
	if err := in.createHaxDirectories(); err != nil {
		return err
	}
	if err := in.fetch(ctx, in.isfshaxSet()); err != nil {
		return err
	}
	return in.verifySuperblock()
}

// StroopwafelFiles downloads the core, payloader and ISFShax patch plugins
// to the SD card or the SLC, and the minute image to the SLC.
func (in *Installer) StroopwafelFiles(ctx context.Context, toSD bool) error {
	if err := in.createHaxDirectories(); err != nil {
		return err
	}
	return in.fetch(ctx, in.stroopwafelSet(toSD))
}

// USBPartitionPlugin downloads one of the usb partition plugins into the
// plugin directory at target.
func (in *Installer) USBPartitionPlugin(ctx context.Context, name, target string) error {
	if target == "" {
		return errors.New("download: no plugin directory")
	}
	return in.fetch(ctx, []artifact{{USBPartitionBase + name, filepath.Join(target, name)}})
}

// SDUSBPlugin downloads 5sdusb.ipx to the SLC and/or SD plugin directories.
func (in *Installer) SDUSBPlugin(ctx context.Context, toSLC, toSD bool) error {
	if toSLC {
		if err := in.createHaxDirectories(); err != nil {
			return err
		}
		if err := in.USBPartitionPlugin(ctx, "5sdusb.ipx", in.slc(SLCPluginDir)); err != nil {
			return err
		}
	}
	if toSD {
		if err := in.USBPartitionPlugin(ctx, "5sdusb.ipx", filepath.Join(in.SDRoot, SDPluginDir)); err != nil {
			return err
		}
	}
	return nil
}

// Aroma downloads the Aroma archive and extracts it onto the SD volume.
func (in *Installer) Aroma(ctx context.Context) error {
	in.Client.print("Downloading Aroma...")
	data, err := in.Client.ToBuffer(ctx, AromaArchive)
	if err != nil {
		return err
	}
	in.Client.print("Extracting Aroma to %s...", in.SDRoot)
	return ExtractZip(data, in.SDRoot)
}

func (in *Installer) stroopwafelSet(toSD bool) []artifact {
	plugins := in.slc(SLCPluginDir)
	if toSD {
		plugins = filepath.Join(in.SDRoot, SDPluginDir)
	}
	return []artifact{
		{StroopwafelCore, filepath.Join(plugins, "00core.ipx")},
		{IsfshaxPatch, filepath.Join(plugins, "5isfshax.ipx")},
		{Payloader, filepath.Join(plugins, "5payldr.ipx")},
		{MinuteFastboot, in.slc("sys/hax/fw.img")},
	}
}

func (in *Installer) isfshaxSet() []artifact {
	return []artifact{
		{Superblock, in.slc("sys/hax/installer/sblock.img")},
		{SuperblockSHA, in.slc("sys/hax/installer/sblock.sha")},
		{IsfshaxInstaller, in.slc(InstallerFile)},
	}
}

func (in *Installer) verifySuperblock() error {
	sum, err := os.ReadFile(in.slc("sys/hax/installer/sblock.sha"))
	if err != nil {
		return err
	}
	err = VerifySHA256(in.slc("sys/hax/installer/sblock.img"), sum)
	if errors.Is(err, ErrUnknownDigest) {
		in.Client.Log.WithError(err).Warn("superblock checksum not verified")
		return nil
	}
	return err
}
