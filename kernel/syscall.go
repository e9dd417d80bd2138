package kernel

import (
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

type CallType int

const (
	CallSwitchProcess CallType = iota
	CallCreateProcess
	CallSleep
	CallExit
	CallGetPID
	CallSendMessage
	CallWaitForMessage
	CallGetPIDByName
	CallGetMapping
	CallAllocateMemory
	CallFreeMemory
	CallOpen
	CallClose
	CallRead
	CallSeek
	CallWrite

	// Posted by the kernel itself rather than through OS.
	callBoot
	callReap

	numCalls
)

var callNames = [numCalls]string{
	CallSwitchProcess:  "switch-process",
	CallCreateProcess:  "create-process",
	CallSleep:          "sleep",
	CallExit:           "exit",
	CallGetPID:         "get-pid",
	CallSendMessage:    "send-message",
	CallWaitForMessage: "wait-for-message",
	CallGetPIDByName:   "get-pid-by-name",
	CallGetMapping:     "get-mapping",
	CallAllocateMemory: "allocate-memory",
	CallFreeMemory:     "free-memory",
	CallOpen:           "open",
	CallClose:          "close",
	CallRead:           "read",
	CallSeek:           "seek",
	CallWrite:          "write",
	callBoot:           "boot",
	callReap:           "reap",
}

func (c CallType) String() string {
	if c < 0 || c >= numCalls {
		return "unknown"
	}

	return callNames[c]
}

// SysArgs is one call and its arguments, in the order OS appends them.
type SysArgs struct {
	Call CallType
	Args []interface{}
}

func (a SysArgs) arg(i int) interface{} {
	if i < 0 || i >= len(a.Args) {
		return nil
	}

	return a.Args[i]
}

func (a SysArgs) Int(i int) int {
	v, _ := a.arg(i).(int)
	return v
}

func (a SysArgs) String(i int) string {
	v, _ := a.arg(i).(string)
	return v
}

func (a SysArgs) Bytes(i int) []byte {
	v, _ := a.arg(i).([]byte)
	return v
}

func (a SysArgs) Duration(i int) time.Duration {
	v, _ := a.arg(i).(time.Duration)
	return v
}

func (a SysArgs) Priority(i int) Priority {
	v, _ := a.arg(i).(Priority)
	return v
}

func (a SysArgs) Body(i int) Body {
	v, _ := a.arg(i).(Body)
	return v
}

func (a SysArgs) Message(i int) Message {
	v, _ := a.arg(i).(Message)
	return v
}

// request is a call in flight. The kernel fills ret before it hands
// control back, so each caller reads its own result.
type request struct {
	args SysArgs
	from *Process
	ret  interface{}

	// done is closed once the kernel has settled on a process to run
	// after this request. Only boot waits on it.
	done chan struct{}
}

type syscallFunc func(k *Kernel, l hclog.Logger, p *Process, args SysArgs) interface{}

var syscalls [numCalls]syscallFunc
