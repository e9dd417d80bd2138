package kernel

import (
	"runtime"
	"time"

	"github.com/pkg/errors"

	"github.com/evanphx/coopos/memory"
)

var (
	ErrBadAllocationSize = errors.New("allocation size must be a positive multiple of the page size")
	ErrOutOfMemory       = errors.New("out of memory")
)

// OS is the system call surface handed to a process body. Each call posts
// a request to the kernel and blocks the process until the kernel hands
// control back to it.
type OS struct {
	k   *Kernel
	p   *Process
	mem *memory.Translator
}

func (o *OS) call(c CallType, args ...interface{}) interface{} {
	if o.p.unit.Killed() {
		runtime.Goexit()
	}

	req := &request{
		args: SysArgs{Call: c, Args: args},
		from: o.p,
	}

	o.k.pending = req
	o.k.unit.Start()
	o.p.unit.Stop()

	if o.p.unit.Killed() {
		runtime.Goexit()
	}

	return req.ret
}

// Memory is the process's view of its virtual address space.
func (o *OS) Memory() *memory.Translator {
	return o.mem
}

// Cooperate yields to the kernel if the quantum timer asked this process
// to stop. Long running loops must call it.
func (o *OS) Cooperate() {
	o.p.unit.Cooperate(func() {
		o.call(CallSwitchProcess)
	})
}

// CreateProcess starts body as a new process and returns its pid, or -1
// if prio is not a known priority.
func (o *OS) CreateProcess(name string, body Body, prio Priority) int {
	pid, ok := o.call(CallCreateProcess, name, body, prio).(int)
	if !ok {
		return -1
	}

	return pid
}

func (o *OS) Sleep(d time.Duration) {
	o.call(CallSleep, d)
}

// Exit ends the calling process. It does not return.
func (o *OS) Exit() {
	o.p.exiting = true
	runtime.Goexit()
}

func (o *OS) GetPID() int {
	pid, _ := o.call(CallGetPID).(int)
	return pid
}

// GetPIDByName returns the lowest live pid named name, or -1.
func (o *OS) GetPIDByName(name string) int {
	pid, ok := o.call(CallGetPIDByName, name).(int)
	if !ok {
		return -1
	}

	return pid
}

// SendMessage delivers a copy of m to m.TargetPid. Sending to a pid that
// does not exist kills the sender.
func (o *OS) SendMessage(m Message) {
	o.call(CallSendMessage, m)
}

// WaitForMessage returns the oldest message in the inbox, blocking until
// one arrives.
func (o *OS) WaitForMessage() Message {
	for {
		if m, ok := o.call(CallWaitForMessage).(Message); ok {
			return m
		}
	}
}

// GetMapping asks the kernel to install vpage into the TLB. An unmapped
// page kills the process, so an error only comes back if the kernel
// refused the call without killing it.
func (o *OS) GetMapping(vpage int) error {
	if ok, _ := o.call(CallGetMapping, vpage).(bool); !ok {
		return errors.Wrapf(memory.ErrSegmentationFault, "page %d", vpage)
	}

	return nil
}

// AllocateMemory maps size bytes of fresh memory and returns the virtual
// address of the first byte.
func (o *OS) AllocateMemory(size int) (int, error) {
	if size <= 0 || size%o.k.cfg.PageSize != 0 {
		return -1, errors.Wrapf(ErrBadAllocationSize, "size %d", size)
	}

	ptr, _ := o.call(CallAllocateMemory, size).(int)
	if ptr < 0 {
		return -1, errors.Wrapf(ErrOutOfMemory, "size %d", size)
	}

	return ptr, nil
}

func (o *OS) FreeMemory(ptr, size int) (bool, error) {
	ps := o.k.cfg.PageSize

	if size <= 0 || size%ps != 0 || ptr < 0 || ptr%ps != 0 {
		return false, errors.Wrapf(ErrBadAllocationSize, "ptr %d, size %d", ptr, size)
	}

	ok, _ := o.call(CallFreeMemory, ptr, size).(bool)
	return ok, nil
}

// Open returns a process-local device handle, or -1.
func (o *OS) Open(desc string) int {
	h, ok := o.call(CallOpen, desc).(int)
	if !ok {
		return -1
	}

	return h
}

func (o *OS) Close(h int) bool {
	ok, _ := o.call(CallClose, h).(bool)
	return ok
}

func (o *OS) Read(h, n int) []byte {
	data, _ := o.call(CallRead, h, n).([]byte)
	return data
}

func (o *OS) Seek(h, pos int) bool {
	ok, _ := o.call(CallSeek, h, pos).(bool)
	return ok
}

// Write returns the number of bytes written, or -1.
func (o *OS) Write(h int, data []byte) int {
	n, ok := o.call(CallWrite, h, data).(int)
	if !ok {
		return -1
	}

	return n
}
