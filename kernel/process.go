package kernel

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/evanphx/coopos/exec"
	"github.com/evanphx/coopos/log"
	"github.com/evanphx/coopos/memory"
	"github.com/evanphx/coopos/pkg/waiter"
)

var (
	ErrNoSuchProcess = errors.New("no such process")
)

// Body is the code of a process. sys is its only way into the kernel.
type Body func(sys *OS)

// Process is the kernel's record for one logical process. Everything but
// timedOut is touched only while the kernel holds control.
type Process struct {
	pid      int
	name     string
	priority Priority

	unit *exec.Unit

	wakeupTime   time.Time
	timeoutCount int
	timedOut     atomic.Bool

	waiting bool
	exiting bool

	devices []int
	inbox   []Message
	pages   *memory.PageTable
}

func newProcess(name string, prio Priority, pages, deviceSlots int) *Process {
	p := &Process{
		name:     name,
		priority: prio,
		devices:  make([]int, deviceSlots),
		pages:    memory.NewPageTable(pages),
	}

	for i := range p.devices {
		p.devices[i] = -1
	}

	return p
}

func (p *Process) Pid() int {
	return p.pid
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) Priority() Priority {
	return p.priority
}

func (p *Process) Finished() bool {
	return p.unit != nil && p.unit.IsFinished()
}

func (p *Process) popMessage() (Message, bool) {
	if len(p.inbox) == 0 {
		return Message{}, false
	}

	m := p.inbox[0]
	p.inbox[0] = Message{}
	p.inbox = p.inbox[1:]

	return m, true
}

const (
	_ waiter.EventType = iota
	ProcessExited
)

// ProcessManager is the process table. Pids are handed out in increasing
// order and never reused.
type ProcessManager struct {
	mu        sync.RWMutex
	highWater int
	processes map[int]*Process

	events waiter.Waiter
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		processes: make(map[int]*Process),
	}
}

func (pm *ProcessManager) AssignPid(proc *Process) int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.highWater++
	pid := pm.highWater
	pm.processes[pid] = proc
	proc.pid = pid

	return pid
}

func (pm *ProcessManager) Get(pid int) (*Process, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	p, ok := pm.processes[pid]
	return p, ok
}

func (pm *ProcessManager) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return len(pm.processes)
}

func (pm *ProcessManager) Remove(proc *Process) {
	pm.mu.Lock()

	cur, ok := pm.processes[proc.pid]
	if ok && cur == proc {
		delete(pm.processes, proc.pid)
	}

	pm.mu.Unlock()

	if ok {
		log.L.Trace("process-removed", "pid", proc.pid)
		pm.events.Notify(ProcessExited)
	}
}

// Each calls f on every live process in pid order until f returns false.
func (pm *ProcessManager) Each(f func(p *Process) bool) {
	pm.mu.RLock()

	procs := make([]*Process, 0, len(pm.processes))
	for _, p := range pm.processes {
		procs = append(procs, p)
	}

	pm.mu.RUnlock()

	sort.Slice(procs, func(i, j int) bool {
		return procs[i].pid < procs[j].pid
	})

	for _, p := range procs {
		if !f(p) {
			return
		}
	}
}

// Lookup returns the lowest live pid with the given name.
func (pm *ProcessManager) Lookup(name string) (int, bool) {
	pid := -1

	pm.Each(func(p *Process) bool {
		if p.name == name {
			pid = p.pid
			return false
		}

		return true
	})

	return pid, pid != -1
}

func (pm *ProcessManager) exited(pid int) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pid <= 0 || pid > pm.highWater {
		return false
	}

	_, live := pm.processes[pid]
	return !live
}

// WaitExit blocks until pid has been created and then removed from the
// table, or ctx is done.
func (pm *ProcessManager) WaitExit(ctx context.Context, pid int) error {
	return pm.events.WaitFor(ctx, ProcessExited, func() bool {
		return pm.exited(pid)
	})
}
