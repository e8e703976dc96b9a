package download

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var artifactNames = []string{
	"00core.ipx", "5isfshax.ipx", "5payldr.ipx", "fw_fastboot.img",
	"superblock.img", "superblock.img.sha", "ios.img", "aroma.zip",
	"5upartsd.ipx", "5usbpart.ipx", "5sdusb.ipx",
}

type release struct {
	mu     sync.Mutex
	files  map[string][]byte
	agents []string
}

func (r *release) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append(r.agents, req.UserAgent())
	data, ok := r.files[strings.TrimPrefix(req.URL.Path, "/")]
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Write(data)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newRig(t *testing.T) (*Installer, *release) {
	t.Helper()
	rel := &release{files: map[string][]byte{}}
	for _, name := range artifactNames {
		rel.files[name] = []byte("payload of " + name)
	}
	rel.files["superblock.img.sha"] = []byte(SHA256(rel.files["superblock.img"]) + "  superblock.img\n")
	rel.files["aroma.zip"] = zipOf(t, map[string]string{
		"wiiu/environments/aroma/modules/setup/00_mocha.rpx": "rpx",
		"wiiu/payloads/default/payload.elf":                 "elf",
	})
	srv := httptest.NewServer(rel)
	t.Cleanup(srv.Close)

	overrides := map[string]string{}
	for _, name := range artifactNames {
		overrides[name] = srv.URL + "/" + name
	}
	log, _ := test.NewNullLogger()
	dir := t.TempDir()
	in := &Installer{
		Client:  NewClient(5*time.Second, overrides, log),
		SLCRoot: filepath.Join(dir, "slc"),
		SDRoot:  filepath.Join(dir, "sd"),
	}
	require.NoError(t, os.MkdirAll(in.SLCRoot, 0o755))
	require.NoError(t, os.MkdirAll(in.SDRoot, 0o755))
	return in, rel
}

func TestHaxFiles(t *testing.T) {
	in, rel := newRig(t)
	require.NoError(t, in.HaxFiles(context.Background()))

	for _, p := range []string{
		"sys/hax/ios_plugins/00core.ipx",
		"sys/hax/ios_plugins/5isfshax.ipx",
		"sys/hax/ios_plugins/5payldr.ipx",
		"sys/hax/fw.img",
		"sys/hax/installer/sblock.img",
		"sys/hax/installer/sblock.sha",
		"sys/hax/installer/fw.img",
	} {
		assert.FileExists(t, filepath.Join(in.SLCRoot, p))
	}
	data, err := os.ReadFile(filepath.Join(in.SLCRoot, "sys/hax/ios_plugins/5payldr.ipx"))
	require.NoError(t, err)
	assert.Equal(t, "payload of 5payldr.ipx", string(data))
	assert.Contains(t, rel.agents, UserAgent)
}

func TestHaxFilesBadChecksum(t *testing.T) {
	in, rel := newRig(t)
	rel.files["superblock.img.sha"] = []byte(strings.Repeat("0", 64))
	assert.ErrorIs(t, in.HaxFiles(context.Background()), ErrChecksum)
}

func TestSLCUnavailable(t *testing.T) {
	in, _ := newRig(t)
	require.NoError(t, os.RemoveAll(in.SLCRoot))
	assert.ErrorIs(t, in.StroopwafelFiles(context.Background(), false), ErrSLCUnavailable)
}

func TestStroopwafelToSD(t *testing.T) {
	in, _ := newRig(t)
	require.NoError(t, in.StroopwafelFiles(context.Background(), true))
	assert.FileExists(t, filepath.Join(in.SDRoot, SDPluginDir, "00core.ipx"))
	assert.FileExists(t, filepath.Join(in.SLCRoot, "sys/hax/fw.img"))
	assert.NoFileExists(t, filepath.Join(in.SLCRoot, SLCPluginDir, "00core.ipx"))
}

func TestPlugins(t *testing.T) {
	in, _ := newRig(t)
	ctx := context.Background()
	require.NoError(t, in.SDUSBPlugin(ctx, true, true))
	assert.FileExists(t, filepath.Join(in.SLCRoot, SLCPluginDir, "5sdusb.ipx"))
	assert.FileExists(t, filepath.Join(in.SDRoot, SDPluginDir, "5sdusb.ipx"))

	target := filepath.Join(in.SLCRoot, SLCPluginDir)
	require.NoError(t, in.USBPartitionPlugin(ctx, "5upartsd.ipx", target))
	assert.FileExists(t, filepath.Join(target, "5upartsd.ipx"))
	assert.Error(t, in.USBPartitionPlugin(ctx, "5upartsd.ipx", ""))
}

func TestAroma(t *testing.T) {
	in, _ := newRig(t)
	require.NoError(t, in.Aroma(context.Background()))
	assert.DirExists(t, filepath.Join(in.SDRoot, AromaDir))
	assert.FileExists(t, filepath.Join(in.SDRoot, "wiiu/payloads/default/payload.elf"))
}

func TestFileNotFoundLeavesNothing(t *testing.T) {
	in, rel := newRig(t)
	delete(rel.files, "ios.img")
	path := filepath.Join(t.TempDir(), "fw.img")
	err := in.Client.File(context.Background(), IsfshaxInstaller, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NoFileExists(t, path)
}

func TestVerifySHA256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	digest := SHA256([]byte("abc"))
	raw, err := hex.DecodeString(digest)
	require.NoError(t, err)

	tests := []struct {
		name string
		want []byte
		err  error
	}{
		{"hex", []byte(digest), nil},
		{"hex uppercase with name", []byte(strings.ToUpper(digest) + "  blob\n"), nil},
		{"raw", raw, nil},
		{"mismatch", []byte(strings.Repeat("f", 64)), ErrChecksum},
		{"unknown", []byte("nope"), ErrUnknownDigest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySHA256(path, tt.want)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestExtractZipRejectsEscape(t *testing.T) {
	data := zipOf(t, map[string]string{"../evil.txt": "x"})
	dest := t.TempDir()
	assert.Error(t, ExtractZip(data, dest))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
	assert.Error(t, ExtractZip([]byte("not a zip"), dest))
}

func TestParsePluginList(t *testing.T) {
	csv := "fileName,shortDescription,longDescription,downloadPath,incompatiblePlugins\n" +
		"5upartsd.ipx,USB partition SD,\"Uses the first FAT32 partition, as SD\",https://example.invalid/5upartsd.ipx,\"5usbpart.ipx, 5sdusb.ipx\"\n" +
		"\n" +
		"5payldr.ipx,Payloader,Loads payloads,https://example.invalid/5payldr.ipx\n" +
		"short,row\n"
	plugins, err := ParsePluginList([]byte(csv))
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "5upartsd.ipx", plugins[0].FileName)
	assert.Equal(t, "Uses the first FAT32 partition, as SD", plugins[0].LongDescription)
	assert.Equal(t, []string{"5usbpart.ipx", "5sdusb.ipx"}, plugins[0].Incompatible)
	assert.Empty(t, plugins[1].Incompatible)
}
