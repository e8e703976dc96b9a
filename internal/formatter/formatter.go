// Package formatter drives the native format ioctl. Every format is preceded
// by the kernel patch that fixes how the routine sizes the first partition.
package formatter

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zer00p/wafel-installer/internal/firmware"
	"github.com/zer00p/wafel-installer/internal/fsa"
)

// FilesystemFAT is the only tag the format routine is driven with.
const FilesystemFAT = "fat"

// ErrFormatFailed is returned whenever the native routine reports anything
// but OK. The routine offers no finer error taxonomy.
var ErrFormatFailed = errors.New("format failed")

// Issuer sends the format ioctl.
type Issuer interface {
	Format(path, filesystem string, flags, param5, param6 uint32) (fsa.Status, error)
}

// Driver formats devices through an Issuer.
type Driver struct {
	issuer Issuer
	kernel firmware.Patcher
	log    logrus.FieldLogger
}

func New(issuer Issuer, kernel firmware.Patcher, log logrus.FieldLogger) *Driver {
	return &Driver{issuer: issuer, kernel: kernel, log: log}
}

// Format formats device with the given tag. customSectors forces the size of
// the first partition; zero lets the routine use the whole device with the
// 32GB ceiling lifted.
func (d *Driver) Format(device, filesystem string, customSectors uint32) error {
	log := d.log.WithFields(logrus.Fields{"device": device, "sectors": customSectors})
	if err := firmware.UnlockCustomFormatSize(d.kernel, customSectors); err != nil {
		return fmt.Errorf("%w: unlock custom size: %w", ErrFormatFailed, err)
	}
	st, err := d.issuer.Format(device, filesystem, 0, 0, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormatFailed, err)
	}
	if st != fsa.StatusOK {
		log.WithField("status", st).Warn("format returned error status")
		return fmt.Errorf("%w: status %s", ErrFormatFailed, st)
	}
	log.Info("format complete")
	return nil
}
