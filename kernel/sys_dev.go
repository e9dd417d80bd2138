package kernel

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// device resolves h for p. A negative handle is a fault; an unknown one is
// only a failed call.
func (k *Kernel) device(l hclog.Logger, p *Process, h int) (int, bool) {
	id, err := p.deviceId(h)
	if err == nil {
		return id, true
	}

	if errors.Cause(err) == ErrBadHandle {
		k.fault(p, err)
		return -1, false
	}

	l.Warn("device-handle", "pid", p.pid, "error", err)
	return -1, false
}

func sysOpen(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	desc := args.String(0)

	h, err := p.freeHandle()
	if err != nil {
		l.Warn("device-open", "pid", p.pid, "desc", desc, "error", err)
		return -1
	}

	id, err := k.vfs.Open(desc)
	if err != nil {
		l.Warn("device-open", "pid", p.pid, "desc", desc, "error", err)
		return -1
	}

	p.devices[h] = id

	return h
}

func sysClose(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	h := args.Int(0)

	id, ok := k.device(l, p, h)
	if !ok {
		return false
	}

	p.devices[h] = -1

	if err := k.vfs.Close(id); err != nil {
		l.Warn("device-close", "pid", p.pid, "handle", h, "error", err)
		return false
	}

	return true
}

func sysRead(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	var (
		h = args.Int(0)
		n = args.Int(1)
	)

	id, ok := k.device(l, p, h)
	if !ok {
		return nil
	}

	if n > k.cfg.MaxRead {
		l.Warn("device-read-too-large", "pid", p.pid, "handle", h, "n", n, "max", k.cfg.MaxRead)
		return nil
	}

	data, err := k.vfs.Read(id, n)
	if err != nil {
		l.Warn("device-read", "pid", p.pid, "handle", h, "error", err)
		return nil
	}

	return data
}

func sysSeek(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	var (
		h   = args.Int(0)
		pos = args.Int(1)
	)

	id, ok := k.device(l, p, h)
	if !ok {
		return false
	}

	if err := k.vfs.Seek(id, pos); err != nil {
		l.Warn("device-seek", "pid", p.pid, "handle", h, "error", err)
		return false
	}

	return true
}

func sysWrite(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	var (
		h    = args.Int(0)
		data = args.Bytes(1)
	)

	id, ok := k.device(l, p, h)
	if !ok {
		return -1
	}

	n, err := k.vfs.Write(id, data)
	if err != nil {
		l.Warn("device-write", "pid", p.pid, "handle", h, "error", err)
		return -1
	}

	return n
}

func init() {
	syscalls[CallOpen] = sysOpen
	syscalls[CallClose] = sysClose
	syscalls[CallRead] = sysRead
	syscalls[CallSeek] = sysSeek
	syscalls[CallWrite] = sysWrite
}
