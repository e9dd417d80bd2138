package kernel

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

func sysSendMessage(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	msg := args.Message(0).Clone()

	target, ok := k.procs.Get(msg.TargetPid)
	if !ok {
		k.fault(p, errors.Wrapf(ErrNoSuchProcess, "send to pid %d", msg.TargetPid))
		return nil
	}

	msg.SenderPid = p.pid
	target.inbox = append(target.inbox, msg)

	l.Trace("message-send", "from", p.pid, "to", target.pid, "type", msg.Type, "queued", len(target.inbox))

	if k.sched.UnparkIfWaiting(target.pid) {
		k.sched.Requeue(target)
	}

	k.switchProcess()

	return nil
}

func sysWaitForMessage(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{} {
	if msg, ok := p.popMessage(); ok {
		return msg
	}

	l.Trace("message-wait", "pid", p.pid)

	k.sched.ParkForMessage(p)
	k.switchProcess()

	return nil
}

func init() {
	syscalls[CallSendMessage] = sysSendMessage
	syscalls[CallWaitForMessage] = sysWaitForMessage
}
