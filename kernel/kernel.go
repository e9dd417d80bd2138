// Package kernel multiplexes logical processes onto goroutines. The kernel
// is itself a gated unit: a process posts a request, starts the kernel and
// stops itself; the kernel serves the request, starts whichever process the
// scheduler picked and stops itself. At most one of them runs at a time.
package kernel

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/coopos/device"
	"github.com/evanphx/coopos/exec"
	"github.com/evanphx/coopos/memory"
)

var ErrAlreadyBooted = errors.New("kernel already booted")

type Kernel struct {
	cfg Config
	l   hclog.Logger

	unit  *exec.Unit
	sched *Scheduler
	procs *ProcessManager

	phys   *memory.Physical
	tlb    *memory.TLB
	frames *memory.FrameTable
	vfs    device.Device

	// name -> pid for GetPIDByName. Entries are checked on hit.
	names *lru.ARCCache

	pending *request
	reaping *Process

	done   <-chan struct{}
	booted atomic.Bool
}

func New(cfg Config) (*Kernel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.fillDefaults()

	names, err := lru.NewARC(cfg.NameCacheSize)
	if err != nil {
		return nil, errors.Wrapf(err, "creating name cache")
	}

	k := &Kernel{
		cfg:    cfg,
		l:      cfg.Logger,
		procs:  NewProcessManager(),
		phys:   memory.NewPhysical(cfg.PageSize, cfg.Frames),
		tlb:    memory.NewTLB(cfg.Rand),
		frames: memory.NewFrameTable(cfg.Frames),
		vfs:    cfg.Device,
		names:  names,
	}

	k.sched = NewScheduler(cfg, k.procs)
	k.sched.onSwitch = k.tlb.Clear
	k.sched.reap = k.terminate

	return k, nil
}

// Boot starts the kernel with an init process running body, plus the idle
// process unless disabled. It returns init's pid once init has been
// scheduled. The kernel stops when ctx is done.
func (k *Kernel) Boot(ctx context.Context, name string, body Body, prio Priority) (int, error) {
	if !prio.valid() {
		return -1, errors.Wrapf(ErrBadPriority, "init priority %d", int(prio))
	}

	if !k.booted.CompareAndSwap(false, true) {
		return -1, ErrAlreadyBooted
	}

	k.done = ctx.Done()

	req := &request{
		args: SysArgs{Call: callBoot, Args: []interface{}{name, body, prio}},
		done: make(chan struct{}),
	}

	k.pending = req
	k.unit = exec.NewUnit("kernel", k.run, nil)

	go k.sched.Run(ctx, k.cfg.Quantum)

	k.l.Info("kernel-boot", "init", name, "priority", prio)

	k.unit.Start()

	select {
	case <-req.done:
		pid, _ := req.ret.(int)
		return pid, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// WaitExit blocks until pid has exited or ctx is done.
func (k *Kernel) WaitExit(ctx context.Context, pid int) error {
	return k.procs.WaitExit(ctx, pid)
}

func (k *Kernel) run() {
	for {
		select {
		case <-k.done:
			k.l.Info("kernel-shutdown")
			return
		default:
		}

		req := k.pending
		k.pending = nil

		if req != nil {
			k.dispatch(req)
		}

		// A killed process gets one last turn to unwind its goroutine.
		// It hands back with a reap request.
		if r := k.reaping; r != nil {
			k.reaping = nil
			r.unit.Start()
			k.unit.Stop()
			continue
		}

		if !k.ensureCurrent() {
			k.l.Info("kernel-shutdown")
			return
		}

		if req != nil && req.done != nil {
			close(req.done)
		}

		k.sched.Current().unit.Start()
		k.unit.Stop()
	}
}

func (k *Kernel) dispatch(req *request) {
	call := req.args.Call

	// A handler must never take the kernel down with it.
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		req.ret = nil

		if req.from == nil {
			k.l.Error("syscall-panic", "call", call, "panic", r)
			return
		}

		k.fault(req.from, errors.Errorf("syscall %s panicked: %v", call, r))
	}()

	if call < 0 || call >= numCalls || syscalls[call] == nil {
		k.l.Error("unknown-syscall", "call", int(call))
		return
	}

	if k.l.IsTrace() {
		var pid int
		if req.from != nil {
			pid = req.from.pid
		}

		k.l.Trace("syscall", "call", call, "pid", pid)
	}

	req.ret = syscalls[call](k, k.l, req.from, req.args)
}

func (k *Kernel) switchProcess() bool {
	return k.sched.SwitchProcess()
}

// ensureCurrent switches until some process is runnable. While everything
// sleeps it waits for the earliest wakeup; it returns false on shutdown.
func (k *Kernel) ensureCurrent() bool {
	for k.sched.Current() == nil {
		if k.switchProcess() {
			return true
		}

		if !k.idleUntilWake() {
			return false
		}
	}

	return true
}

func (k *Kernel) idleUntilWake() bool {
	var wake <-chan time.Time

	if at, ok := k.sched.NextWakeup(); ok {
		t := time.NewTimer(at.Sub(k.cfg.Now()))
		defer t.Stop()

		wake = t.C
	}

	select {
	case <-k.done:
		return false
	case <-wake:
		return true
	}
}

func (k *Kernel) createProcess(name string, body Body, prio Priority) int {
	p := newProcess(name, prio, k.cfg.Pages, k.cfg.DeviceSlots)

	sys := &OS{k: k, p: p}
	sys.mem = memory.NewTranslator(k.phys, k.tlb, sys)

	p.unit = exec.NewUnit(name, func() { body(sys) }, func(*exec.Unit) {
		k.unitExited(p)
	})

	return k.sched.CreateProcess(p)
}

// unitExited runs on the process goroutine after its body is gone and hands
// control to the kernel for the last time.
func (k *Kernel) unitExited(p *Process) {
	call := CallSwitchProcess

	switch {
	case p.unit.Killed():
		call = callReap
	case p.exiting:
		call = CallExit
	}

	k.pending = &request{args: SysArgs{Call: call}, from: p}
	k.unit.Start()
}

// terminate releases everything p holds and forgets it.
func (k *Kernel) terminate(p *Process) {
	k.l.Debug("process-exit", "pid", p.pid, "name", p.name)

	k.closeAllDevices(p)
	k.freeAllMemory(p)

	p.inbox = nil

	k.names.Remove(p.name)
	k.sched.Remove(p)
}

// fault kills p for a violation it caused during its own call.
func (k *Kernel) fault(p *Process, err error) {
	k.l.Error("process-fault", "pid", p.pid, "name", p.name, "error", err)

	k.terminate(p)

	// Its goroutine is already gone; nothing left to unwind.
	if p.unit == nil || p.Finished() {
		return
	}

	p.unit.Kill()

	k.reaping = p
}
