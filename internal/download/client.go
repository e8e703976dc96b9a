// Package download fetches the homebrew release artifacts the installer
// places on the SD card and the SLC.
package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const UserAgent = "ISFShaxLoader/1.0"

var (
	ErrChecksum      = errors.New("download: checksum mismatch")
	ErrUnknownDigest = errors.New("download: unrecognised checksum format")
)

// Client downloads files over HTTP. Overrides replaces the URL of an
// artifact, looked up by the last path element of the URL.
type Client struct {
	HTTP      *http.Client
	Overrides map[string]string
	Log       logrus.FieldLogger
	Print     func(line string)
}

func NewClient(timeout time.Duration, overrides map[string]string, log logrus.FieldLogger) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		Overrides: overrides,
		Log:       log,
	}
}

func (c *Client) resolve(url string) string {
	if c.Overrides == nil {
		return url
	}
	if u, ok := c.Overrides[url[strings.LastIndex(url, "/")+1:]]; ok {
		return u
	}
	return url
}

func (c *Client) print(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.Log.Info(line)
	if c.Print != nil {
		c.Print(line)
	}
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(url), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", req.URL, resp.Status)
	}
	return resp.Body, nil
}

// ToBuffer downloads url into memory.
func (c *Client) ToBuffer(ctx context.Context, url string) ([]byte, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	return buf.Bytes(), nil
}

// File downloads url to path. A partial file is removed on failure.
func (c *Client) File(ctx context.Context, url, path string) error {
	c.print("Downloading %s...", url)
	body, err := c.get(ctx, url)
	if err != nil {
		c.print("Download failed: %v", err)
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer body.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	c.print("Successfully downloaded %s", url)
	return nil
}

// SHA256 returns the lowercase hex digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifySHA256 compares the digest of the file at path against want, given
// either as the raw 32 digest bytes or as hex text the way sha256sum prints
// it. ErrUnknownDigest is returned when want is neither.
func VerifySHA256(path string, want []byte) error {
	var digest string
	switch fields := strings.Fields(string(want)); {
	case len(want) == sha256.Size:
		digest = hex.EncodeToString(want)
	case len(fields) > 0 && len(fields[0]) == 2*sha256.Size:
		digest = fields[0]
	default:
		return fmt.Errorf("%w for %s", ErrUnknownDigest, filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if got := SHA256(data); !strings.EqualFold(got, digest) {
		return fmt.Errorf("%w: %s has %s, want %s", ErrChecksum, filepath.Base(path), got, digest)
	}
	return nil
}
