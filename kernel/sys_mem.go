package kernel

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/coopos/memory"
)

func sysGetMapping(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	vpage := args.Int(0)

	frame, ok := p.pages.Lookup(vpage)
	if !ok {
		k.fault(p, errors.Wrapf(memory.ErrSegmentationFault, "page %d", vpage))
		return false
	}

	slot := k.tlb.Install(vpage, frame)

	l.Trace("tlb-install", "pid", p.pid, "page", vpage, "frame", frame, "slot", slot)

	return true
}

// sysAllocateMemory maps the first run of free virtual pages that fits
// onto the lowest free frames and returns the run's virtual address.
func sysAllocateMemory(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	var (
		size = args.Int(0)
		ps   = k.cfg.PageSize
	)

	if size <= 0 || size%ps != 0 {
		l.Warn("allocate-bad-size", "pid", p.pid, "size", size)
		return -1
	}

	pages := size / ps

	if pages > k.frames.Free() {
		l.Warn("allocate-no-frames", "pid", p.pid, "pages", pages, "free", k.frames.Free())
		return -1
	}

	start := p.pages.FindFree(pages)
	if start < 0 {
		l.Warn("allocate-no-pages", "pid", p.pid, "pages", pages)
		return -1
	}

	for i := 0; i < pages; i++ {
		frame, _ := k.frames.Allocate()
		p.pages.Map(start+i, frame)
	}

	l.Trace("allocate", "pid", p.pid, "start-page", start, "pages", pages)

	return start * ps
}

func sysFreeMemory(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	var (
		ptr  = args.Int(0)
		size = args.Int(1)
		ps   = k.cfg.PageSize
	)

	if ptr < 0 || size <= 0 || ptr%ps != 0 || size%ps != 0 {
		return false
	}

	start := ptr / ps
	end := start + size/ps

	if !p.pages.Contains(start) || !p.pages.Contains(end-1) {
		l.Warn("free-out-of-range", "pid", p.pid, "ptr", ptr, "size", size)
		return false
	}

	for vpage := start; vpage < end; vpage++ {
		frame, ok := p.pages.Unmap(vpage)
		if !ok {
			continue
		}

		if err := k.frames.Release(frame); err != nil {
			l.Error("free-frame", "pid", p.pid, "frame", frame, "error", err)
		}

		k.tlb.Invalidate(vpage)
	}

	return true
}

// freeAllMemory releases every frame p holds.
func (k *Kernel) freeAllMemory(p *Process) {
	p.pages.Reset(func(frame int) {
		if err := k.frames.Release(frame); err != nil {
			k.l.Error("free-frame", "pid", p.pid, "frame", frame, "error", err)
		}
	})
}

func init() {
	syscalls[CallGetMapping] = sysGetMapping
	syscalls[CallAllocateMemory] = sysAllocateMemory
	syscalls[CallFreeMemory] = sysFreeMemory
}
