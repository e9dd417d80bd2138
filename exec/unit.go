// Package exec runs process bodies. Each body gets its own goroutine, but
// the goroutine only makes progress while it holds the permit of its gate,
// and the kernel hands that permit to exactly one unit at a time.
package exec

import (
	"sync/atomic"

	"github.com/evanphx/coopos/log"
)

// State is the lifecycle position of a Unit.
type State int

const (
	Created State = iota
	Blocked
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Blocked:
		return "blocked"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Unit wraps one goroutine with a binary gate.
type Unit struct {
	name string
	gate chan struct{}

	state         atomic.Int32
	stopRequested atomic.Bool
	killed        atomic.Bool

	body   func()
	onExit func(u *Unit)
}

// NewUnit creates a unit and parks its goroutine on the gate. body does not
// run until the first Start. onExit runs on the unit's goroutine once body
// has returned (normally, by panic, or by runtime.Goexit).
func NewUnit(name string, body func(), onExit func(u *Unit)) *Unit {
	u := &Unit{
		name:   name,
		gate:   make(chan struct{}, 1),
		body:   body,
		onExit: onExit,
	}

	u.state.Store(int32(Created))

	go u.run()

	return u
}

func (u *Unit) Name() string {
	return u.name
}

func (u *Unit) run() {
	u.state.Store(int32(Blocked))
	<-u.gate
	u.state.Store(int32(Running))

	defer func() {
		if r := recover(); r != nil {
			log.L.Error("unit-panic", "unit", u.name, "panic", r)
		}

		u.state.Store(int32(Finished))

		if u.onExit != nil {
			u.onExit(u)
		}
	}()

	u.body()
}

// Start grants the run permit. It never blocks; a unit that already holds
// a permit keeps exactly one.
func (u *Unit) Start() {
	select {
	case u.gate <- struct{}{}:
	default:
	}
}

// Stop blocks the calling goroutine until the permit is granted. Only the
// unit's own goroutine calls Stop on itself.
func (u *Unit) Stop() {
	if u.State() == Running {
		u.state.Store(int32(Blocked))
	}

	<-u.gate

	if u.State() == Blocked {
		u.state.Store(int32(Running))
	}
}

// RequestStop raises the cooperative stop flag. It is observed only at the
// next Cooperate.
func (u *Unit) RequestStop() {
	u.stopRequested.Store(true)
}

// StopRequested reports whether a stop is pending.
func (u *Unit) StopRequested() bool {
	return u.stopRequested.Load()
}

// ClearStop drops a pending stop request.
func (u *Unit) ClearStop() {
	u.stopRequested.Store(false)
}

// Cooperate is the yield point. If a stop was requested, the flag is
// cleared and yield is invoked to hand control back to the kernel.
func (u *Unit) Cooperate(yield func()) bool {
	if !u.stopRequested.CompareAndSwap(true, false) {
		return false
	}

	yield()
	return true
}

// IsBlocked is true iff the gate holds no permit.
func (u *Unit) IsBlocked() bool {
	return len(u.gate) == 0
}

func (u *Unit) IsFinished() bool {
	return u.State() == Finished
}

func (u *Unit) State() State {
	return State(u.state.Load())
}

// Kill marks the unit as terminated by the kernel. The unit unwinds the
// next time it returns from Stop.
func (u *Unit) Kill() {
	u.killed.Store(true)
}

func (u *Unit) Killed() bool {
	return u.killed.Load()
}
