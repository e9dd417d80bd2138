package main

import (
	"fmt"
	"time"

	"github.com/evanphx/coopos/kernel"
	clog "github.com/evanphx/coopos/log"
)

var demos = map[string]func(rounds int) kernel.Body{
	"pingpong":   pingPong,
	"priorities": priorities,
	"memory":     memoryDemo,
	"devices":    devices,
}

// reap sleeps until none of names is alive any more.
func reap(sys *kernel.OS, names ...string) {
	for _, name := range names {
		for sys.GetPIDByName(name) != -1 {
			sys.Sleep(10 * time.Millisecond)
		}
	}
}

func pingPong(rounds int) kernel.Body {
	l := clog.Named("pingpong")

	ping := func(sys *kernel.OS) {
		target := sys.GetPIDByName("pong")

		for i := 0; i < rounds; i++ {
			sys.SendMessage(kernel.NewMessage(target, 99, []byte("PING-99")))
			sys.Cooperate()

			m := sys.WaitForMessage()
			l.Info("ping received", "from", m.SenderPid, "type", m.Type, "payload", string(m.Payload))
		}
	}

	pong := func(sys *kernel.OS) {
		for i := 0; i < rounds; i++ {
			m := sys.WaitForMessage()
			l.Info("pong received", "from", m.SenderPid, "type", m.Type, "payload", string(m.Payload))

			sys.SendMessage(kernel.NewMessage(m.SenderPid, 100, []byte("PONG-100")))
		}
	}

	return func(sys *kernel.OS) {
		sys.CreateProcess("pong", pong, kernel.Realtime)
		sys.CreateProcess("ping", ping, kernel.Realtime)

		reap(sys, "ping", "pong")
	}
}

func priorities(rounds int) kernel.Body {
	l := clog.Named("priorities")

	worker := func(label string) kernel.Body {
		return func(sys *kernel.OS) {
			pid := sys.GetPID()

			for i := 0; i < rounds; i++ {
				l.Info("step", "label", label, "pid", pid, "i", i)

				// Spin past a quantum so the timer marks us.
				deadline := time.Now().Add(60 * time.Millisecond)
				for time.Now().Before(deadline) {
					sys.Cooperate()
				}
			}

			l.Info("finished", "label", label, "pid", pid)
		}
	}

	sleeper := func(sys *kernel.OS) {
		pid := sys.GetPID()

		for i := 0; i < rounds; i++ {
			l.Info("sleeper awake", "pid", pid, "i", i)
			sys.Sleep(100 * time.Millisecond)
		}
	}

	return func(sys *kernel.OS) {
		sys.CreateProcess("rt", worker("rt"), kernel.Realtime)
		sys.CreateProcess("ia", worker("ia"), kernel.Interactive)
		sys.CreateProcess("bg", worker("bg"), kernel.Background)
		sys.CreateProcess("sleeper", sleeper, kernel.Realtime)

		reap(sys, "rt", "ia", "bg", "sleeper")
	}
}

func memoryDemo(rounds int) kernel.Body {
	l := clog.Named("memory")

	isolated := func(v byte) kernel.Body {
		return func(sys *kernel.OS) {
			ptr, err := sys.AllocateMemory(2048)
			if err != nil {
				l.Error("allocate failed", "error", err)
				return
			}

			mem := sys.Memory()

			if err := mem.Write(ptr, v); err != nil {
				l.Error("write failed", "error", err)
				return
			}

			sys.Sleep(20 * time.Millisecond)

			got, err := mem.Read(ptr)
			if err != nil {
				l.Error("read failed", "error", err)
				return
			}

			l.Info("isolation", "pid", sys.GetPID(), "wrote", v, "read", got, "tlb-misses", mem.Misses())
		}
	}

	reuse := func(sys *kernel.OS) {
		for i := 0; i < rounds; i++ {
			a, err := sys.AllocateMemory(1024)
			if err != nil {
				l.Error("allocate failed", "error", err)
				return
			}

			b, _ := sys.AllocateMemory(2048)

			sys.FreeMemory(a, 1024)

			c, _ := sys.AllocateMemory(1024)

			l.Info("reuse", "first", a, "second", b, "after-free", c)

			sys.FreeMemory(b, 2048)
			sys.FreeMemory(c, 1024)
		}
	}

	segv := func(sys *kernel.OS) {
		l.Info("touching unmapped memory", "pid", sys.GetPID())
		sys.Memory().Read(50 * 1024)
		l.Error("still alive after a bad access")
	}

	return func(sys *kernel.OS) {
		sys.CreateProcess("iso-a", isolated(11), kernel.Realtime)
		sys.CreateProcess("iso-b", isolated(77), kernel.Realtime)
		sys.CreateProcess("reuse", reuse, kernel.Interactive)
		sys.CreateProcess("segv", segv, kernel.Background)

		reap(sys, "iso-a", "iso-b", "reuse", "segv")
	}
}

func devices(rounds int) kernel.Body {
	l := clog.Named("devices")

	random := func(sys *kernel.OS) {
		h := sys.Open("random 42")
		if h < 0 {
			l.Error("open random failed")
			return
		}

		for i := 0; i < rounds; i++ {
			l.Info("random", "bytes", fmt.Sprintf("%x", sys.Read(h, 8)))
			sys.Seek(h, 4)
		}

		sys.Close(h)
	}

	file := func(name string) kernel.Body {
		return func(sys *kernel.OS) {
			h := sys.Open("file coopos-demo.txt")
			if h < 0 {
				l.Error("open file failed")
				return
			}

			for i := 0; i < rounds; i++ {
				sys.Write(h, []byte(fmt.Sprintf("%s line %d\n", name, i)))
				sys.Sleep(5 * time.Millisecond)
			}

			sys.Seek(h, 0)
			l.Info("file", "writer", name, "head", string(sys.Read(h, 64)))

			sys.Close(h)
		}
	}

	return func(sys *kernel.OS) {
		sys.CreateProcess("random", random, kernel.Realtime)
		sys.CreateProcess("writer-a", file("a"), kernel.Interactive)
		sys.CreateProcess("writer-b", file("b"), kernel.Interactive)

		reap(sys, "random", "writer-a", "writer-b")
	}
}
