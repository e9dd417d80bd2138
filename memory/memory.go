// Package memory simulates the paging hardware: physical frames, per
// process page tables and a two entry TLB in front of them.
package memory

import (
	"github.com/pkg/errors"
)

const (
	DefaultPageSize = 1024 // (1 KB)
	DefaultFrames   = 1024
	DefaultPages    = 100

	// Unmapped marks a page table entry or TLB slot that holds no mapping.
	Unmapped = -1
)

var (
	ErrInvalidMemoryAccess = errors.New("invalid memory access")
	ErrSegmentationFault   = errors.New("segmentation fault")
	ErrBadFrame            = errors.New("bad frame")
)

// Rand is the random source used for TLB replacement. *math/rand.Rand
// satisfies it.
type Rand interface {
	Intn(n int) int
}

// Physical is the flat physical memory, addressed by frame and offset.
type Physical struct {
	pageSize int
	linear   []byte
}

func NewPhysical(pageSize, frames int) *Physical {
	return &Physical{
		pageSize: pageSize,
		linear:   make([]byte, pageSize*frames),
	}
}

func (p *Physical) PageSize() int {
	return p.pageSize
}

func (p *Physical) Size() int {
	return len(p.linear)
}

func (p *Physical) Frames() int {
	return len(p.linear) / p.pageSize
}

func (p *Physical) address(frame, offset int) (int, error) {
	if frame < 0 || offset < 0 || offset >= p.pageSize {
		return 0, errors.Wrapf(ErrInvalidMemoryAccess, "frame=%d, offset=%d", frame, offset)
	}

	addr := frame*p.pageSize + offset
	if addr >= len(p.linear) {
		return 0, errors.Wrapf(ErrInvalidMemoryAccess, "frame=%d, offset=%d", frame, offset)
	}

	return addr, nil
}

func (p *Physical) Load(frame, offset int) (byte, error) {
	addr, err := p.address(frame, offset)
	if err != nil {
		return 0, err
	}

	return p.linear[addr], nil
}

func (p *Physical) Store(frame, offset int, v byte) error {
	addr, err := p.address(frame, offset)
	if err != nil {
		return err
	}

	p.linear[addr] = v
	return nil
}
