package kernel

import (
	hclog "github.com/hashicorp/go-hclog"
)

func sysSwitchProcess(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	k.switchProcess()
	return nil
}

func sysCreateProcess(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	var (
		name = args.String(0)
		body = args.Body(1)
		prio = args.Priority(2)
	)

	if !prio.valid() {
		l.Warn("create-process-bad-priority", "name", name, "priority", int(prio))
		return -1
	}

	if body == nil {
		l.Warn("create-process-without-body", "name", name)
		body = func(*OS) {}
	}

	return k.createProcess(name, body, prio)
}

func sysSleep(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	k.sched.Sleep(args.Duration(0))
	k.switchProcess()
	return nil
}

func sysExit(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	if p == nil {
		l.Error("exit-without-process")
		return nil
	}

	k.terminate(p)
	k.switchProcess()

	return nil
}

func sysGetPID(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	return p.pid
}

func sysGetPIDByName(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	name := args.String(0)

	if v, ok := k.names.Get(name); ok {
		pid := v.(int)

		if proc, ok := k.procs.Get(pid); ok && proc.name == name {
			return pid
		}

		k.names.Remove(name)
	}

	pid, ok := k.procs.Lookup(name)
	if !ok {
		return -1
	}

	k.names.Add(name, pid)

	return pid
}

// sysBoot creates init and the idle process.
func sysBoot(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	pid := k.createProcess(args.String(0), args.Body(1), args.Priority(2))

	if !k.cfg.DisableIdle {
		nap := k.cfg.IdleNap

		k.createProcess("idle", func(sys *OS) {
			for {
				sys.Sleep(nap)
			}
		}, Background)
	}

	return pid
}

func sysReap(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	if p != nil {
		l.Trace("process-reaped", "pid", p.pid)
	}

	return nil
}

func init() {
	syscalls[CallSwitchProcess] = sysSwitchProcess
	syscalls[CallCreateProcess] = sysCreateProcess
	syscalls[CallSleep] = sysSleep
	syscalls[CallExit] = sysExit
	syscalls[CallGetPID] = sysGetPID
	syscalls[CallGetPIDByName] = sysGetPIDByName
	syscalls[callBoot] = sysBoot
	syscalls[callReap] = sysReap
}
