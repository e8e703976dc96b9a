package fsa

import (
	"github.com/sirupsen/logrus"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/fatfs"
	"github.com/zer00p/wafel-installer/internal/firmware"
)

// stockFormatCeiling is the largest device the unpatched format routine accepts.
const stockFormatCeiling = 32 << 30

// HostTransport serves the format ioctl on the host by running the FAT
// formatter against the resolved backing device, sized the way the patched
// kernel routine would size it.
type HostTransport struct {
	Kernel   firmware.Patcher
	Resolver Resolver
	Direct   bool
	Log      logrus.FieldLogger
}

func (h *HostTransport) Ioctl(cmd uint32, in, out []byte) Status {
	if cmd != CmdFormat {
		return StatusUnsupportedCmd
	}
	var req FormatRequest
	if err := req.UnmarshalBinary(in); err != nil {
		return StatusFatalError
	}
	if req.Filesystem != "fat" {
		h.Log.WithField("fs", req.Filesystem).Warn("unsupported filesystem tag")
		return StatusUnsupportedCmd
	}
	log := h.Log.WithField("device", req.Device)

	backing, err := h.Resolver.Resolve(req.Device)
	if err != nil {
		log.WithError(err).Warn("format target missing")
		return StatusMediaNotReady
	}
	dev, err := blockio.Open(backing, h.Direct)
	if err != nil {
		log.WithError(err).Warn("open format target")
		return StatusMediaNotReady
	}
	defer dev.Close()

	policy, err := firmware.ReadFormatPolicy(h.Kernel)
	if err != nil {
		log.WithError(err).Error("read kernel format policy")
		return StatusFatalError
	}
	opts := fatfs.Options{}
	if policy.CustomSectors != 0 {
		opts.Sectors = policy.CustomSectors
		opts.Type = fatfs.FAT32
	} else if !policy.SizeCheckRemoved && dev.Info().TotalBytes() > stockFormatCeiling {
		log.Warn("device exceeds the stock 32GB format ceiling")
		return StatusUnsupportedCmd
	}

	var last uint64
	opts.Progress = func(done, total uint64) {
		if pct := done * 100 / total; pct >= last+25 || done == total {
			last = pct
			log.WithField("progress", pct).Debug("clearing system area")
		}
	}
	res, err := fatfs.FormatDevice(dev, opts)
	if err != nil {
		log.WithError(err).Error("format failed")
		return StatusMediaError
	}
	if err := dev.Sync(); err != nil {
		log.WithError(err).Error("sync after format")
		return StatusMediaError
	}
	log.WithFields(logrus.Fields{
		"type":    res.Type,
		"start":   res.Start,
		"sectors": res.Sectors,
	}).Info("formatted")
	return StatusOK
}
