package kernel

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/evanphx/coopos/device"
)

const e2eTimeout = 5 * time.Second

func e2eConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Quantum = 2 * time.Millisecond
	cfg.IdleNap = time.Millisecond
	cfg.Rand = rand.New(rand.NewSource(1))
	cfg.Logger = hclog.NewNullLogger()
	cfg.Device = device.NewVFS(t.TempDir())

	return cfg
}

func boot(t *testing.T, cfg Config, body Body) (*Kernel, int) {
	k, err := New(cfg)
	require.NoError(t, err)

	pid, err := bootKernel(t, k, body)
	require.NoError(t, err)

	return k, pid
}

func bootKernel(t *testing.T, k *Kernel, body Body) (int, error) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return k.Boot(ctx, "init", body, Realtime)
}

func recv[T any](t *testing.T, c chan T) T {
	t.Helper()

	select {
	case v := <-c:
		return v
	case <-time.After(e2eTimeout):
		t.Fatal("timed out waiting for a process")
	}

	var zero T
	return zero
}

func waitExit(t *testing.T, k *Kernel, pid int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), e2eTimeout)
	defer cancel()

	require.NoError(t, k.WaitExit(ctx, pid))
}

func TestKernel(t *testing.T) {
	n := neko.Modern(t)

	n.It("refuses a bad config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PageSize = 0

		_, err := New(cfg)
		require.Equal(t, ErrBadConfig, errors.Cause(err))
	})

	n.It("boots only once", func(t *testing.T) {
		k, _ := boot(t, e2eConfig(t), func(sys *OS) {})

		_, err := k.Boot(context.Background(), "again", func(sys *OS) {}, Realtime)
		require.Equal(t, ErrAlreadyBooted, err)
	})

	n.It("hands out increasing pids that are never reused", func(t *testing.T) {
		pids := make(chan int, 8)

		k, initPid := boot(t, e2eConfig(t), func(sys *OS) {
			for i := 0; i < 3; i++ {
				pids <- sys.CreateProcess(fmt.Sprintf("child-%d", i), func(sys *OS) {}, Interactive)
			}

			sys.Sleep(5 * time.Millisecond)

			pids <- sys.CreateProcess("late", func(sys *OS) {}, Interactive)
		})

		require.Equal(t, 1, initPid)

		var got []int
		for i := 0; i < 4; i++ {
			got = append(got, recv(t, pids))
		}

		// pid 2 is the idle process.
		require.Equal(t, []int{3, 4, 5, 6}, got)

		for _, pid := range got {
			waitExit(t, k, pid)
		}

		waitExit(t, k, initPid)
	})

	n.It("never runs two process bodies at once", func(t *testing.T) {
		var (
			active    atomic.Int32
			violation atomic.Bool
		)

		worker := func(sys *OS) {
			for i := 0; i < 200; i++ {
				if active.Add(1) > 1 {
					violation.Store(true)
				}

				runtime.Gosched()
				active.Add(-1)

				if i%50 == 0 {
					sys.Sleep(time.Millisecond)
				}

				sys.Cooperate()
			}
		}

		pids := make(chan int, 3)

		k, _ := boot(t, e2eConfig(t), func(sys *OS) {
			pids <- sys.CreateProcess("w1", worker, Realtime)
			pids <- sys.CreateProcess("w2", worker, Interactive)
			pids <- sys.CreateProcess("w3", worker, Background)
		})

		for i := 0; i < 3; i++ {
			waitExit(t, k, recv(t, pids))
		}

		require.False(t, violation.Load())
	})

	n.It("keeps each process's memory to itself", func(t *testing.T) {
		type result struct {
			ptr int
			val byte
		}

		results := make(chan result, 2)

		writer := func(v byte) Body {
			return func(sys *OS) {
				ptr, err := sys.AllocateMemory(2048)
				if err != nil {
					results <- result{ptr: -1}
					return
				}

				mem := sys.Memory()
				mem.Write(ptr, v)

				sys.Sleep(3 * time.Millisecond)

				got, err := mem.Read(ptr)
				if err != nil {
					results <- result{ptr: -1}
					return
				}

				results <- result{ptr: ptr, val: got}
			}
		}

		boot(t, e2eConfig(t), func(sys *OS) {
			sys.CreateProcess("a", writer(11), Realtime)
			sys.CreateProcess("b", writer(77), Realtime)
		})

		r1 := recv(t, results)
		r2 := recv(t, results)

		require.Equal(t, 0, r1.ptr)
		require.Equal(t, 0, r2.ptr)
		require.ElementsMatch(t, []byte{11, 77}, []byte{r1.val, r2.val})
	})

	n.It("asks the kernel for a mapping once per cached page", func(t *testing.T) {
		misses := make(chan [3]int, 1)

		boot(t, e2eConfig(t), func(sys *OS) {
			ptr, err := sys.AllocateMemory(1024)
			if err != nil {
				misses <- [3]int{-1, -1, -1}
				return
			}

			mem := sys.Memory()
			mem.Write(ptr+10, 5)
			first := mem.Misses()

			v, _ := mem.Read(ptr + 10)
			misses <- [3]int{first, mem.Misses(), int(v)}
		})

		got := recv(t, misses)
		require.Equal(t, [3]int{1, 1, 5}, got)
	})

	n.It("reports a successful mapping request", func(t *testing.T) {
		errs := make(chan error, 1)

		boot(t, e2eConfig(t), func(sys *OS) {
			if _, err := sys.AllocateMemory(1024); err != nil {
				errs <- err
				return
			}

			errs <- sys.GetMapping(0)
		})

		require.NoError(t, recv(t, errs))
	})

	n.It("plays ping pong by name", func(t *testing.T) {
		var (
			atPing = make(chan Message, 1)
			atPong = make(chan Message, 1)
			pongs  = make(chan int, 1)
		)

		k, initPid := boot(t, e2eConfig(t), func(sys *OS) {
			pongs <- sys.CreateProcess("pong", func(sys *OS) {
				m := sys.WaitForMessage()
				atPong <- m

				sys.SendMessage(NewMessage(m.SenderPid, 100, []byte("PONG-100")))
			}, Interactive)

			target := sys.GetPIDByName("pong")
			sys.SendMessage(NewMessage(target, 99, []byte("PING-99")))

			atPing <- sys.WaitForMessage()
		})

		ping := recv(t, atPong)
		pong := recv(t, atPing)
		pongPid := recv(t, pongs)

		require.Equal(t, 99, ping.Type)
		require.Equal(t, []byte("PING-99"), ping.Payload)
		require.Equal(t, initPid, ping.SenderPid)

		require.Equal(t, 100, pong.Type)
		require.Equal(t, []byte("PONG-100"), pong.Payload)
		require.Equal(t, pongPid, pong.SenderPid)

		waitExit(t, k, initPid)
		waitExit(t, k, pongPid)
	})

	n.It("delivers messages from one sender in order", func(t *testing.T) {
		got := make(chan []int, 1)

		boot(t, e2eConfig(t), func(sys *OS) {
			target := sys.CreateProcess("sink", func(sys *OS) {
				sys.Sleep(5 * time.Millisecond)

				var types []int
				for i := 0; i < 3; i++ {
					types = append(types, sys.WaitForMessage().Type)
				}

				got <- types
			}, Interactive)

			for i := 1; i <= 3; i++ {
				sys.SendMessage(NewMessage(target, i, nil))
			}
		})

		require.Equal(t, []int{1, 2, 3}, recv(t, got))
	})

	n.It("kills a process that touches unmapped memory and keeps going", func(t *testing.T) {
		var reached atomic.Bool
		bad := make(chan int, 1)
		after := make(chan int, 1)

		k, _ := boot(t, e2eConfig(t), func(sys *OS) {
			bad <- sys.CreateProcess("bad", func(sys *OS) {
				sys.Memory().Read(5000)
				reached.Store(true)
			}, Realtime)

			for sys.GetPIDByName("bad") != -1 {
				sys.Sleep(time.Millisecond)
			}

			after <- sys.GetPID()
		})

		waitExit(t, k, recv(t, bad))

		require.Equal(t, 1, recv(t, after))
		require.False(t, reached.Load())
	})

	n.It("kills a process that sends to a missing pid", func(t *testing.T) {
		var reached atomic.Bool

		k, initPid := boot(t, e2eConfig(t), func(sys *OS) {
			sys.SendMessage(NewMessage(999, 1, nil))
			reached.Store(true)
		})

		waitExit(t, k, initPid)
		require.False(t, reached.Load())
	})

	n.It("kills a process that uses a negative handle", func(t *testing.T) {
		var reached atomic.Bool

		k, initPid := boot(t, e2eConfig(t), func(sys *OS) {
			sys.Read(-1, 4)
			reached.Store(true)
		})

		waitExit(t, k, initPid)
		require.False(t, reached.Load())
	})

	n.It("stops a process at Exit", func(t *testing.T) {
		var reached atomic.Bool

		k, initPid := boot(t, e2eConfig(t), func(sys *OS) {
			sys.Exit()
			reached.Store(true)
		})

		waitExit(t, k, initPid)
		require.False(t, reached.Load())
	})

	n.It("survives a panicking process", func(t *testing.T) {
		alive := make(chan int, 1)
		crasher := make(chan int, 1)

		k, _ := boot(t, e2eConfig(t), func(sys *OS) {
			crasher <- sys.CreateProcess("crash", func(sys *OS) {
				panic("boom")
			}, Realtime)

			sys.Sleep(5 * time.Millisecond)

			alive <- sys.GetPID()
		})

		waitExit(t, k, recv(t, crasher))
		require.Equal(t, 1, recv(t, alive))
	})

	n.It("refuses to boot init with an unknown priority", func(t *testing.T) {
		k, err := New(e2eConfig(t))
		require.NoError(t, err)

		_, err = k.Boot(context.Background(), "init", func(sys *OS) {}, Priority(9))
		require.Equal(t, ErrBadPriority, errors.Cause(err))

		pid, err := bootKernel(t, k, func(sys *OS) {})
		require.NoError(t, err)
		require.Equal(t, 1, pid)
	})

	n.It("keeps going after a create with an unknown priority", func(t *testing.T) {
		type result struct {
			bad, good, self int
		}

		results := make(chan result, 1)
		ran := make(chan struct{})

		boot(t, e2eConfig(t), func(sys *OS) {
			var r result

			r.bad = sys.CreateProcess("bad", func(sys *OS) {}, Priority(7))
			r.good = sys.CreateProcess("good", func(sys *OS) { close(ran) }, Interactive)
			r.self = sys.GetPID()

			results <- r
		})

		r := recv(t, results)
		require.Equal(t, -1, r.bad)
		require.Equal(t, 3, r.good)
		require.Equal(t, 1, r.self)

		recv(t, ran)
	})

	n.It("keeps going after an oversized read", func(t *testing.T) {
		type result struct {
			huge  []byte
			small []byte
			self  int
		}

		results := make(chan result, 1)

		boot(t, e2eConfig(t), func(sys *OS) {
			var r result

			h := sys.Open("random 1")
			r.huge = sys.Read(h, 1<<50)
			r.small = sys.Read(h, 4)
			r.self = sys.GetPID()

			results <- r
		})

		r := recv(t, results)
		require.Nil(t, r.huge)
		require.Len(t, r.small, 4)
		require.Equal(t, 1, r.self)
	})

	n.It("kills only the caller when a device blows up", func(t *testing.T) {
		var reached atomic.Bool
		victim := make(chan int, 1)
		after := make(chan int, 1)

		cfg := e2eConfig(t)
		cfg.Device = panicDevice{}

		k, _ := boot(t, cfg, func(sys *OS) {
			victim <- sys.CreateProcess("victim", func(sys *OS) {
				h := sys.Open("anything")
				sys.Read(h, 4)
				reached.Store(true)
			}, Realtime)

			for sys.GetPIDByName("victim") != -1 {
				sys.Sleep(time.Millisecond)
			}

			after <- sys.GetPID()
		})

		waitExit(t, k, recv(t, victim))

		require.Equal(t, 1, recv(t, after))
		require.False(t, reached.Load())
	})

	n.It("frees a process's memory when it ends", func(t *testing.T) {
		free := make(chan int, 1)
		held := make(chan error, 1)

		cfg := e2eConfig(t)
		cfg.Frames = 8

		boot(t, cfg, func(sys *OS) {
			sys.CreateProcess("hog", func(sys *OS) {
				_, err := sys.AllocateMemory(8 * 1024)
				held <- err
			}, Realtime)

			for sys.GetPIDByName("hog") != -1 {
				sys.Sleep(time.Millisecond)
			}

			ptr, err := sys.AllocateMemory(8 * 1024)
			if err != nil {
				free <- -1
				return
			}

			free <- ptr
		})

		require.NoError(t, recv(t, held))
		require.Equal(t, 0, recv(t, free))
	})

	n.It("reports allocation errors to the caller", func(t *testing.T) {
		errs := make(chan error, 2)

		cfg := e2eConfig(t)
		cfg.Frames = 2

		boot(t, cfg, func(sys *OS) {
			_, err := sys.AllocateMemory(100)
			errs <- err

			_, err = sys.AllocateMemory(4096)
			errs <- err
		})

		require.Equal(t, ErrBadAllocationSize, errors.Cause(recv(t, errs)))
		require.Equal(t, ErrOutOfMemory, errors.Cause(recv(t, errs)))
	})

	n.It("reads devices through process handles", func(t *testing.T) {
		type out struct {
			a, b  []byte
			text  string
			wrote int
		}

		results := make(chan out, 1)

		boot(t, e2eConfig(t), func(sys *OS) {
			var o out

			h1 := sys.Open("random 42")
			h2 := sys.Open("random 42")

			o.a = sys.Read(h1, 8)
			o.b = sys.Read(h2, 8)

			sys.Close(h1)
			sys.Close(h2)

			f := sys.Open("file notes.txt")
			o.wrote = sys.Write(f, []byte("hello"))
			sys.Seek(f, 0)
			o.text = string(sys.Read(f, 5))
			sys.Close(f)

			results <- o
		})

		o := recv(t, results)

		require.Len(t, o.a, 8)
		require.Equal(t, o.a, o.b)
		require.Equal(t, 5, o.wrote)
		require.Equal(t, "hello", o.text)
	})

	n.Meow()
}
