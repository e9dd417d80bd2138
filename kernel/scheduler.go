package kernel

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/coopos/memory"
)

// Scheduler owns the ready queues, the sleep queue and the set of
// processes parked waiting for a message. Apart from Tick and Current,
// it is only used by the kernel while it holds control.
type Scheduler struct {
	l hclog.Logger

	procs    *ProcessManager
	queues   [numPriorities][]*Process
	sleepers sleepQueue
	waiting  map[int]*Process

	current atomic.Pointer[Process]

	rand        memory.Rand
	now         func() time.Time
	demoteAfter int

	// onSwitch runs at the start of every switch. reap replaces Remove
	// for processes found finished.
	onSwitch func()
	reap     func(p *Process)
}

func NewScheduler(cfg Config, procs *ProcessManager) *Scheduler {
	cfg.fillDefaults()

	return &Scheduler{
		l:           cfg.Logger.Named("scheduler"),
		procs:       procs,
		waiting:     make(map[int]*Process),
		rand:        cfg.Rand,
		now:         cfg.Now,
		demoteAfter: cfg.DemoteAfter,
	}
}

func (s *Scheduler) Current() *Process {
	return s.current.Load()
}

// CreateProcess gives p a pid, queues it and, if nothing is running,
// switches to it.
func (s *Scheduler) CreateProcess(p *Process) int {
	pid := s.procs.AssignPid(p)

	s.l.Trace("process-create", "pid", pid, "name", p.name, "priority", p.priority)

	s.enqueue(p)

	if s.current.Load() == nil {
		s.SwitchProcess()
	}

	return pid
}

func (s *Scheduler) enqueue(p *Process) {
	s.queues[p.priority] = append(s.queues[p.priority], p)
}

// SwitchProcess retires the current process and picks the next one. It
// returns false when nothing is runnable; current is then nil.
func (s *Scheduler) SwitchProcess() bool {
	if s.onSwitch != nil {
		s.onSwitch()
	}

	if cur := s.current.Swap(nil); cur != nil {
		if !cur.Finished() {
			s.demote(cur)
		}

		s.Requeue(cur)
	}

	s.wakeSleepers()

	for {
		p := s.pick()
		if p == nil {
			s.l.Trace("switch-idle")
			return false
		}

		if p.Finished() {
			s.drop(p)
			continue
		}

		// A tick that raced the previous switch-out may have marked p
		// after it was demoted; its new turn starts clean.
		p.timedOut.Store(false)
		if p.unit != nil {
			p.unit.ClearStop()
		}

		s.current.Store(p)

		if s.l.IsTrace() {
			s.l.Trace("switch", "pid", p.pid, "name", p.name, "queues", spew.Sdump(s.Snapshot()))
		}

		return true
	}
}

// Requeue puts p back on the ready queue of its current priority. Finished
// processes are dropped and parked ones are left alone.
func (s *Scheduler) Requeue(p *Process) {
	if p.Finished() {
		s.drop(p)
		return
	}

	if _, ok := s.waiting[p.pid]; ok {
		return
	}

	s.enqueue(p)
}

func (s *Scheduler) drop(p *Process) {
	s.l.Trace("process-finished", "pid", p.pid)

	if s.reap != nil {
		s.reap(p)
		return
	}

	s.Remove(p)
}

// demote counts a timeout against p. A switch without one forgives all
// earlier timeouts.
func (s *Scheduler) demote(p *Process) {
	if !p.timedOut.Swap(false) {
		p.timeoutCount = 0
		return
	}

	p.timeoutCount++

	if p.timeoutCount >= s.demoteAfter {
		prev := p.priority
		p.priority = prev.demoted()
		p.timeoutCount = 0

		if prev != p.priority {
			s.l.Debug("process-demoted", "pid", p.pid, "from", prev, "to", p.priority)
		}
	}
}

func (s *Scheduler) wakeSleepers() {
	now := s.now()

	for {
		p, ok := s.sleepers.popDue(now)
		if !ok {
			return
		}

		s.l.Trace("process-wake", "pid", p.pid)
		s.enqueue(p)
	}
}

func (s *Scheduler) popQueue(prio Priority) *Process {
	q := s.queues[prio]
	p := q[0]
	q[0] = nil
	s.queues[prio] = q[1:]
	return p
}

// pick runs the priority lottery. Realtime gets 60% of draws when present,
// interactive 30% and background 10%; with no realtime work, interactive
// gets 75% and background 25%. A draw that lands on an empty queue falls
// back to the highest non-empty one.
func (s *Scheduler) pick() *Process {
	var (
		rt = len(s.queues[Realtime]) > 0
		ia = len(s.queues[Interactive]) > 0
		bg = len(s.queues[Background]) > 0
	)

	switch {
	case rt:
		n := s.rand.Intn(10)

		switch {
		case n == 0 && bg:
			return s.popQueue(Background)
		case n >= 1 && n <= 3 && ia:
			return s.popQueue(Interactive)
		default:
			return s.popQueue(Realtime)
		}
	case ia:
		if s.rand.Intn(4) == 0 && bg {
			return s.popQueue(Background)
		}

		return s.popQueue(Interactive)
	case bg:
		return s.popQueue(Background)
	default:
		return nil
	}
}

// Sleep moves the current process to the sleep queue until now+d. The
// caller must switch afterwards.
func (s *Scheduler) Sleep(d time.Duration) {
	p := s.current.Load()
	if p == nil {
		return
	}

	s.demote(p)

	p.wakeupTime = s.now().Add(d)
	s.sleepers.push(p)
	s.current.Store(nil)

	s.l.Trace("process-sleep", "pid", p.pid, "wake", p.wakeupTime)
}

// NextWakeup is the earliest time a sleeper becomes runnable.
func (s *Scheduler) NextWakeup() (time.Time, bool) {
	return s.sleepers.next()
}

func (s *Scheduler) ParkForMessage(p *Process) {
	p.waiting = true
	s.waiting[p.pid] = p

	s.removeQueued(p)
	s.sleepers.remove(p)
}

// UnparkIfWaiting takes pid out of the waiting set. It does not requeue.
func (s *Scheduler) UnparkIfWaiting(pid int) bool {
	p, ok := s.waiting[pid]
	if !ok {
		return false
	}

	delete(s.waiting, pid)
	p.waiting = false

	return true
}

func (s *Scheduler) removeQueued(p *Process) {
	q := s.queues[p.priority]

	for i, x := range q {
		if x == p {
			s.queues[p.priority] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

// Remove forgets p everywhere: queues, sleepers, waiting set, current and
// the process table.
func (s *Scheduler) Remove(p *Process) {
	for prio := range s.queues {
		q := s.queues[prio]
		for i, x := range q {
			if x == p {
				s.queues[prio] = append(q[:i:i], q[i+1:]...)
				break
			}
		}
	}

	s.sleepers.remove(p)
	delete(s.waiting, p.pid)
	p.waiting = false

	s.current.CompareAndSwap(p, nil)

	s.procs.Remove(p)
}

// Tick is the quantum timer firing.
func (s *Scheduler) Tick() {
	p := s.current.Load()
	if p == nil {
		return
	}

	p.timedOut.Store(true)

	if p.unit != nil {
		p.unit.RequestStop()
	}
}

// Run fires Tick every quantum until ctx is done.
func (s *Scheduler) Run(ctx context.Context, quantum time.Duration) {
	t := time.NewTicker(quantum)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}

type Snapshot struct {
	Current     int
	Realtime    []int
	Interactive []int
	Background  []int
	Sleeping    []int
	Waiting     []int
}

func (s *Scheduler) Snapshot() Snapshot {
	pids := func(q []*Process) []int {
		var out []int
		for _, p := range q {
			out = append(out, p.pid)
		}
		return out
	}

	snap := Snapshot{
		Current:     -1,
		Realtime:    pids(s.queues[Realtime]),
		Interactive: pids(s.queues[Interactive]),
		Background:  pids(s.queues[Background]),
		Sleeping:    s.sleepers.pids(),
	}

	if p := s.current.Load(); p != nil {
		snap.Current = p.pid
	}

	for pid := range s.waiting {
		snap.Waiting = append(snap.Waiting, pid)
	}

	sort.Ints(snap.Waiting)

	return snap
}
