package kernel

import (
	"github.com/pkg/errors"
)

var (
	ErrBadHandle     = errors.New("bad device handle")
	ErrUnknownHandle = errors.New("unknown device handle")
	ErrNoFreeHandle  = errors.New("no free device handle")
)

// Each process maps its own small handles onto device ids. A free slot
// holds -1.

func (p *Process) freeHandle() (int, error) {
	for h, id := range p.devices {
		if id < 0 {
			return h, nil
		}
	}

	return -1, ErrNoFreeHandle
}

func (p *Process) deviceId(h int) (int, error) {
	if h < 0 {
		return -1, errors.Wrapf(ErrBadHandle, "handle %d", h)
	}

	if h >= len(p.devices) || p.devices[h] < 0 {
		return -1, errors.Wrapf(ErrUnknownHandle, "handle %d", h)
	}

	return p.devices[h], nil
}

func (k *Kernel) closeAllDevices(p *Process) {
	for h, id := range p.devices {
		if id < 0 {
			continue
		}

		if err := k.vfs.Close(id); err != nil {
			k.l.Warn("device-close", "pid", p.pid, "handle", h, "error", err)
		}

		p.devices[h] = -1
	}
}
