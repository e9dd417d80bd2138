package memory

import (
	"github.com/pkg/errors"
)

// FrameTable is the global bitmap of physical frames; true means leased.
type FrameTable struct {
	used []bool
	free int
}

func NewFrameTable(frames int) *FrameTable {
	return &FrameTable{
		used: make([]bool, frames),
		free: frames,
	}
}

func (f *FrameTable) Len() int {
	return len(f.used)
}

// Free returns the number of frames not leased.
func (f *FrameTable) Free() int {
	return f.free
}

func (f *FrameTable) InUse(frame int) bool {
	if frame < 0 || frame >= len(f.used) {
		return false
	}

	return f.used[frame]
}

// Allocate leases the lowest free frame.
func (f *FrameTable) Allocate() (int, bool) {
	for i, used := range f.used {
		if !used {
			f.used[i] = true
			f.free--
			return i, true
		}
	}

	return Unmapped, false
}

func (f *FrameTable) Release(frame int) error {
	if frame < 0 || frame >= len(f.used) {
		return errors.Wrapf(ErrBadFrame, "frame %d out of range", frame)
	}

	if !f.used[frame] {
		return errors.Wrapf(ErrBadFrame, "frame %d is not leased", frame)
	}

	f.used[frame] = false
	f.free++

	return nil
}
