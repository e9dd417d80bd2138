package kernel

import (
	"math/rand"
	"os"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/coopos/device"
	"github.com/evanphx/coopos/log"
	"github.com/evanphx/coopos/memory"
)

var ErrBadConfig = errors.New("bad kernel config")

type Config struct {
	PageSize    int
	Frames      int
	Pages       int
	DeviceSlots int

	// Quantum is the timer period that flags the current process to yield
	// at its next Cooperate.
	Quantum     time.Duration
	DemoteAfter int

	IdleNap     time.Duration
	DisableIdle bool

	NameCacheSize int

	// MaxRead caps the byte count of a single Read call.
	MaxRead int

	// Rand drives both the priority lottery and TLB replacement.
	Rand memory.Rand
	Now  func() time.Time

	Device device.Device
	Logger hclog.Logger
}

func DefaultConfig() Config {
	return Config{
		PageSize:      memory.DefaultPageSize,
		Frames:        memory.DefaultFrames,
		Pages:         memory.DefaultPages,
		DeviceSlots:   device.DefaultSlots,
		Quantum:       250 * time.Millisecond,
		DemoteAfter:   5,
		IdleNap:       10 * time.Millisecond,
		NameCacheSize: 128,
		MaxRead:       device.MaxRead,
	}
}

func (c *Config) validate() error {
	checks := []struct {
		name string
		v    int64
	}{
		{"page size", int64(c.PageSize)},
		{"frames", int64(c.Frames)},
		{"pages", int64(c.Pages)},
		{"device slots", int64(c.DeviceSlots)},
		{"quantum", int64(c.Quantum)},
		{"demote after", int64(c.DemoteAfter)},
		{"name cache size", int64(c.NameCacheSize)},
		{"max read", int64(c.MaxRead)},
	}

	for _, chk := range checks {
		if chk.v <= 0 {
			return errors.Wrapf(ErrBadConfig, "%s must be positive, got %d", chk.name, chk.v)
		}
	}

	if !c.DisableIdle && c.IdleNap <= 0 {
		return errors.Wrapf(ErrBadConfig, "idle nap must be positive, got %s", c.IdleNap)
	}

	return nil
}

func (c *Config) fillDefaults() {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Named("kernel")
	}

	if c.Device == nil {
		c.Device = device.NewVFS(os.TempDir())
	}
}
