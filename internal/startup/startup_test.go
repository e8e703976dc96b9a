package startup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/cfw"
	"github.com/zer00p/wafel-installer/internal/download"
	"github.com/zer00p/wafel-installer/internal/fatfs"
	"github.com/zer00p/wafel-installer/internal/firmware"
	"github.com/zer00p/wafel-installer/internal/formatter"
	"github.com/zer00p/wafel-installer/internal/fsa"
	"github.com/zer00p/wafel-installer/internal/prompt"
	"github.com/zer00p/wafel-installer/internal/workflow"
)

type recordedDownloads struct{ calls []string }

func (d *recordedDownloads) add(c string) error { d.calls = append(d.calls, c); return nil }

func (d *recordedDownloads) HaxFiles(context.Context) error      { return d.add("hax") }
func (d *recordedDownloads) InstallerOnly(context.Context) error { return d.add("installer") }
func (d *recordedDownloads) IsfshaxFiles(context.Context) error  { return d.add("isfshax") }
func (d *recordedDownloads) Aroma(context.Context) error         { return d.add("aroma") }
func (d *recordedDownloads) StroopwafelFiles(context.Context, bool) error {
	return d.add("stroopwafel")
}
func (d *recordedDownloads) SDUSBPlugin(context.Context, bool, bool) error { return d.add("sdusb") }
func (d *recordedDownloads) USBPartitionPlugin(_ context.Context, name, _ string) error {
	return d.add(name)
}

type env struct {
	t       *testing.T
	sd, usb string
	ui      *prompt.Script
	dl      *recordedDownloads
	mounts  *fsa.Registry
	checker *Checker
}

// newEnv builds a checker over image files and host directories with a
// complete Stroopwafel, ISFShax and Aroma setup.
func newEnv(t *testing.T, sdSize, usbSize int64, answers ...string) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		t:   t,
		sd:  filepath.Join(dir, "sd.img"),
		usb: filepath.Join(dir, "usb.img"),
		ui:  prompt.NewScript(answers...),
		dl:  &recordedDownloads{},
	}
	if sdSize > 0 {
		require.NoError(t, blockio.CreateImage(e.sd, sdSize))
	}
	if usbSize > 0 {
		require.NoError(t, blockio.CreateImage(e.usb, usbSize))
	}

	slc, sdRoot := filepath.Join(dir, "slc"), filepath.Join(dir, "sdroot")
	for _, p := range []string{
		filepath.Join(slc, download.SLCPluginDir, "00core.ipx"),
		filepath.Join(slc, "sys/hax/installer/.isfshax-installed"),
		filepath.Join(sdRoot, download.AromaDir, "root.rpx"),
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	log, _ := logtest.NewNullLogger()
	kernel := firmware.NewMemory()
	res := fsa.HostResolver{Kernel: kernel, SD: e.sd, USB: e.usb}
	client := fsa.NewClient(&fsa.HostTransport{Kernel: kernel, Resolver: res, Log: log}, res, false, log)
	e.mounts = fsa.NewRegistry(client, log)
	t.Cleanup(e.mounts.Close)

	e.ui.OnShow = func(m string) {
		if strings.HasPrefix(m, "Remove ALL") {
			e.move(".out", "")
			e.ui.PressNext(prompt.ButtonNone)
		}
	}
	e.ui.OnPoll = func(int) { e.move("", ".out") }

	w := &workflow.Workflow{
		UI:                e.ui,
		Storage:           workflow.ClientStorage(client),
		Mounts:            e.mounts,
		Formatter:         formatter.New(client, kernel, log),
		Kernel:            kernel,
		Downloads:         e.dl,
		CFW:               &cfw.Host{SLCRoot: slc, SDRoot: sdRoot, Firmware: kernel, Log: log},
		Log:               log,
		DefaultFATPercent: 80,
	}
	e.checker = New(w, log)
	return e
}

// move renames every image from name+from to name+to when present.
func (e *env) move(to, from string) {
	for _, p := range []string{e.sd, e.usb} {
		if _, err := os.Stat(p + from); err == nil {
			require.NoError(e.t, os.Rename(p+from, p+to))
		}
	}
}

func formatImage(t *testing.T, path string) {
	t.Helper()
	dev, err := blockio.Open(path, false)
	require.NoError(t, err)
	defer dev.Close()
	_, err = fatfs.FormatDevice(dev, fatfs.Options{})
	require.NoError(t, err)
}

func TestRunWithUsableSD(t *testing.T) {
	e := newEnv(t, 8<<30, 0)
	formatImage(t, e.sd)

	require.NoError(t, e.checker.Run(context.Background()))
	assert.Empty(t, e.ui.Shown)
	assert.Empty(t, e.dl.calls)
	assert.True(t, e.mounts.Mounted(fsa.SlotSD))
}

func TestRunWithUnmountableSD(t *testing.T) {
	e := newEnv(t, 8<<30, 0, "No")

	assert.ErrorIs(t, e.checker.Run(context.Background()), workflow.ErrUserCancelled)
	asked, ok := e.ui.Find("could not be mounted")
	require.True(t, ok)
	assert.Equal(t, 0, asked.DefaultIndex)
}

func TestRunWithoutSD(t *testing.T) {
	e := newEnv(t, 0, 0, "Retry SD", "Abort")

	assert.ErrorIs(t, e.checker.Run(context.Background()), workflow.ErrUserCancelled)
	assert.Equal(t, []string{"No SD card found!", "No SD card found!"}, e.ui.Messages())
}

func TestRunUsesUSBInPlaceOfSD(t *testing.T) {
	e := newEnv(t, 0, 8<<30, "Use USB device", "OK", "Yes", "Format whole drive to FAT32", "Yes")

	require.NoError(t, e.checker.Run(context.Background()))
	assert.Empty(t, e.ui.Errors)
	assert.Equal(t, []string{"5upartsd.ipx"}, e.dl.calls)
	assert.True(t, e.mounts.Mounted(fsa.SlotSD))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	e := newEnv(t, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.checker.Run(ctx), context.Canceled)
}
