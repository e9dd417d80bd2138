package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/evanphx/coopos/device"
	"github.com/evanphx/coopos/kernel"
	clog "github.com/evanphx/coopos/log"
)

var (
	fQuantum = pflag.DurationP("quantum", "q", 250*time.Millisecond, "scheduler quantum")
	fSeed    = pflag.Int64P("seed", "s", 0, "seed for the scheduler lottery and TLB (0 picks one)")
	fRoot    = pflag.StringP("root", "r", "", "directory backing \"file\" devices")
	fRun     = pflag.DurationP("run", "t", 10*time.Second, "stop the kernel after this long")
	fDemo    = pflag.StringP("demo", "d", "pingpong", "demo to run")
	fRounds  = pflag.IntP("rounds", "n", 5, "iterations per demo process")
	fLevel   = pflag.StringP("level", "l", "", "log level (trace, debug, info, warn, error)")
	fPrio    = pflag.StringP("priority", "p", "realtime", "priority of the demo's init process")
)

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Usage = usage
	pflag.Parse()

	clog.EnableDebug()

	if *fLevel != "" && !clog.SetLevel(*fLevel) {
		log.Fatalf("unknown log level: %s", *fLevel)
	}

	demo, ok := demos[*fDemo]
	if !ok {
		usage()
		os.Exit(1)
	}

	prio, err := kernel.ParsePriority(*fPrio)
	if err != nil {
		log.Fatal(err)
	}

	root := *fRoot
	if root == "" {
		root = os.TempDir()
	}

	seed := *fSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cfg := kernel.DefaultConfig()
	cfg.Quantum = *fQuantum
	cfg.Rand = rand.New(rand.NewSource(seed))
	cfg.Device = device.NewVFS(root)

	k, err := kernel.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *fRun)
	defer cancel()

	clog.L.Info("starting", "demo", *fDemo, "seed", seed, "quantum", *fQuantum)

	pid, err := k.Boot(ctx, *fDemo, demo(*fRounds), prio)
	if err != nil {
		log.Fatal(err)
	}

	err = k.WaitExit(ctx, pid)

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}

	if err != nil {
		clog.L.Warn("demo did not finish", "error", err)
		os.Exit(1)
	}

	clog.L.Info("demo finished", "demo", *fDemo)
}

func usage() {
	var names []string
	for name := range demos {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Fprintf(os.Stderr, "usage: coopos [flags]\n\ndemos: %v\n\n", names)
	pflag.PrintDefaults()
}
