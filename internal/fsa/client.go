package fsa

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zer00p/wafel-installer/internal/blockio"
)

// Logical device paths.
const (
	PathSD   = "/dev/sdcard01"
	PathUSB1 = "/dev/usb01"
	PathUSB2 = "/dev/usb02"
	PathUSB3 = "/dev/usb03"
)

// ErrFormatUnavailable is returned by Format when the ioctl buffers cannot
// be prepared.
var ErrFormatUnavailable = errors.New("format request could not be issued")

// Transport carries an ioctl to the filesystem server.
type Transport interface {
	Ioctl(cmd uint32, in, out []byte) Status
}

// Client is one filesystem server session.
type Client struct {
	transport Transport
	resolver  Resolver
	direct    bool
	log       logrus.FieldLogger
}

// NewClient opens a session over transport. Raw handles are opened with
// O_DIRECT when direct is set.
func NewClient(transport Transport, resolver Resolver, direct bool, log logrus.FieldLogger) *Client {
	return &Client{transport: transport, resolver: resolver, direct: direct, log: log}
}

// DeviceInfo returns the current geometry of a logical device. It fails with
// blockio.ErrDeviceUnavailable when nothing is attached.
func (c *Client) DeviceInfo(path string) (blockio.Info, error) {
	dev, err := c.RawOpen(path)
	if err != nil {
		return blockio.Info{}, err
	}
	defer dev.Close()
	return dev.Info(), nil
}

// RawOpen returns a raw sector handle on a logical device. The caller owns
// and closes it.
func (c *Client) RawOpen(path string) (*blockio.Device, error) {
	backing, err := c.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	return blockio.Open(backing, c.direct)
}

// Format issues the native format ioctl and returns its status.
func (c *Client) Format(path, filesystem string, flags, param5, param6 uint32) (Status, error) {
	req := FormatRequest{Device: path, Filesystem: filesystem, Flags: flags, Param5: param5, Param6: param6}
	in, err := req.MarshalBinary()
	if err != nil {
		return StatusFatalError, fmt.Errorf("%w: %w", ErrFormatUnavailable, err)
	}
	out := make([]byte, FormatResponseSize)
	st := c.transport.Ioctl(CmdFormat, in, out)
	c.log.WithFields(logrus.Fields{"device": path, "fs": filesystem, "status": st}).Debug("format ioctl")
	return st, nil
}
