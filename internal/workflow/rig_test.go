package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/firmware"
	"github.com/zer00p/wafel-installer/internal/formatter"
	"github.com/zer00p/wafel-installer/internal/fsa"
	"github.com/zer00p/wafel-installer/internal/mbr"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

const (
	sectorSize    = 512
	eightGiB      = 8 << 30
	eightGiBLBAs  = eightGiB / sectorSize
	alignedSector = (64 << 20) / sectorSize
)

type fakeDownloads struct {
	calls []string
	fail  map[string]error
}

func (f *fakeDownloads) do(call string) error {
	f.calls = append(f.calls, call)
	return f.fail[strings.SplitN(call, ":", 2)[0]]
}

func (f *fakeDownloads) HaxFiles(context.Context) error      { return f.do("hax") }
func (f *fakeDownloads) InstallerOnly(context.Context) error { return f.do("installer") }
func (f *fakeDownloads) IsfshaxFiles(context.Context) error  { return f.do("isfshax") }
func (f *fakeDownloads) Aroma(context.Context) error         { return f.do("aroma") }

func (f *fakeDownloads) StroopwafelFiles(_ context.Context, toSD bool) error {
	return f.do(fmt.Sprintf("stroopwafel:%t", toSD))
}

func (f *fakeDownloads) USBPartitionPlugin(_ context.Context, name, target string) error {
	return f.do("plugin:" + name + ":" + target)
}

func (f *fakeDownloads) SDUSBPlugin(_ context.Context, toSLC, toSD bool) error {
	return f.do(fmt.Sprintf("sdusb:%t:%t", toSLC, toSD))
}

type fakeCFW struct {
	stroopwafel bool
	isfshax     bool
	emulated    bool
	aroma       bool
	pluginPath  string
	bootErrs    []error
	boots       int
	shutdowns   int
}

func (f *fakeCFW) StroopwafelAvailable() bool { return f.stroopwafel }
func (f *fakeCFW) IsfshaxInstalled() bool     { return f.isfshax }
func (f *fakeCFW) SDEmulated() bool           { return f.emulated }
func (f *fakeCFW) AromaInstalled() bool       { return f.aroma }
func (f *fakeCFW) SLCPluginPath() string      { return "/slc/sys/hax/ios_plugins" }

func (f *fakeCFW) PluginPath() string {
	if !f.stroopwafel {
		return ""
	}
	return f.pluginPath
}

func (f *fakeCFW) BootInstaller() error {
	f.boots++
	if len(f.bootErrs) > 0 {
		err := f.bootErrs[0]
		f.bootErrs = f.bootErrs[1:]
		return err
	}
	return nil
}

func (f *fakeCFW) Shutdown() error {
	f.shutdowns++
	return nil
}

// flakyFormatter fails the first fails calls, or every call when fails is
// negative.
type flakyFormatter struct {
	next  Formatter
	fails int
	calls int
}

func (f *flakyFormatter) Format(device, fs string, customSectors uint32) error {
	f.calls++
	if f.fails < 0 || f.calls <= f.fails {
		return formatter.ErrFormatFailed
	}
	return f.next.Format(device, fs, customSectors)
}

type rig struct {
	t      *testing.T
	kernel *firmware.Memory
	sd     string
	usb    string
	mounts *fsa.Registry
	ui     *prompt.Script
	dl     *fakeDownloads
	env    *fakeCFW
	w      *Workflow
	states []State
}

// newRig builds a workflow over sparse image files. A size of zero leaves
// that device unplugged. Every "Remove ALL" prompt physically unplugs the
// images; the next poll plugs them back in.
func newRig(t *testing.T, sdSize, usbSize int64, answers ...string) *rig {
	t.Helper()
	dir := t.TempDir()
	r := &rig{
		t:      t,
		kernel: firmware.NewMemory(),
		sd:     filepath.Join(dir, "sd.img"),
		usb:    filepath.Join(dir, "usb.img"),
		ui:     prompt.NewScript(answers...),
		dl:     &fakeDownloads{fail: map[string]error{}},
		env:    &fakeCFW{stroopwafel: true, isfshax: true, aroma: true, pluginPath: "/slc/sys/hax/ios_plugins"},
	}
	if sdSize > 0 {
		require.NoError(t, blockio.CreateImage(r.sd, sdSize))
	}
	if usbSize > 0 {
		require.NoError(t, blockio.CreateImage(r.usb, usbSize))
	}

	log, _ := logtest.NewNullLogger()
	res := fsa.HostResolver{Kernel: r.kernel, SD: r.sd, USB: r.usb}
	client := fsa.NewClient(&fsa.HostTransport{Kernel: r.kernel, Resolver: res, Log: log}, res, false, log)
	r.mounts = fsa.NewRegistry(client, log)
	t.Cleanup(r.mounts.Close)

	r.ui.OnShow = func(message string) {
		if strings.HasPrefix(message, "Remove ALL") {
			r.unplug()
			r.ui.PressNext(prompt.ButtonNone)
		}
	}
	r.ui.OnPoll = func(int) { r.plug() }

	r.w = &Workflow{
		UI:                r.ui,
		Storage:           ClientStorage(client),
		Mounts:            r.mounts,
		Formatter:         formatter.New(client, r.kernel, log),
		Kernel:            r.kernel,
		Downloads:         r.dl,
		CFW:               r.env,
		Log:               log,
		DefaultFATPercent: 80,
		OnState:           func(s State) { r.states = append(r.states, s) },
	}
	return r
}

func (r *rig) unplug() {
	for _, p := range []string{r.sd, r.usb} {
		if _, err := os.Stat(p); err == nil {
			require.NoError(r.t, os.Rename(p, p+".out"))
		}
	}
}

func (r *rig) plug() {
	for _, p := range []string{r.sd, r.usb} {
		if _, err := os.Stat(p + ".out"); err == nil {
			require.NoError(r.t, os.Rename(p+".out", p))
		}
	}
}

func (r *rig) sector(path string, lba int64) []byte {
	r.t.Helper()
	r.plug()
	f, err := os.Open(path)
	require.NoError(r.t, err)
	defer f.Close()
	buf := make([]byte, sectorSize)
	_, err = f.ReadAt(buf, lba*sectorSize)
	require.NoError(r.t, err)
	return buf
}

func (r *rig) writeSector(path string, lba int64, data []byte) {
	r.t.Helper()
	r.plug()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(r.t, err)
	defer f.Close()
	_, err = f.WriteAt(data, lba*sectorSize)
	require.NoError(r.t, err)
}

func (r *rig) table(path string) *mbr.MBR {
	r.t.Helper()
	m, err := mbr.Decode(r.sector(path, 0))
	require.NoError(r.t, err)
	return m
}

func (r *rig) noScriptErrors() {
	r.t.Helper()
	require.Empty(r.t, r.ui.Errors)
	require.Empty(r.t, r.ui.Remaining())
}

func tableOf(entries ...mbr.Entry) []byte {
	m := &mbr.MBR{}
	copy(m.Entries[:], entries)
	return m.Encode()
}

func isCancelled(err error) bool { return errors.Is(err, ErrUserCancelled) }
