package memory

import (
	"github.com/pkg/errors"
)

// Mapper resolves a TLB miss for the current process by installing the
// page's frame into the TLB.
type Mapper interface {
	GetMapping(vpage int) error
}

// Translator reads and writes single bytes at virtual addresses.
type Translator struct {
	phys   *Physical
	tlb    *TLB
	mapper Mapper
	misses int
}

func NewTranslator(phys *Physical, tlb *TLB, mapper Mapper) *Translator {
	return &Translator{
		phys:   phys,
		tlb:    tlb,
		mapper: mapper,
	}
}

// Misses returns how many lookups had to go to the mapper.
func (t *Translator) Misses() int {
	return t.misses
}

func (t *Translator) translate(addr int) (int, int, error) {
	if addr < 0 {
		return 0, 0, errors.Wrapf(ErrInvalidMemoryAccess, "address %d", addr)
	}

	ps := t.phys.PageSize()
	vpage, offset := addr/ps, addr%ps

	frame, ok := t.tlb.Lookup(vpage)
	if ok {
		return frame, offset, nil
	}

	t.misses++

	if err := t.mapper.GetMapping(vpage); err != nil {
		return 0, 0, err
	}

	frame, ok = t.tlb.Lookup(vpage)
	if !ok {
		return 0, 0, errors.Wrapf(ErrSegmentationFault, "address %d (page %d)", addr, vpage)
	}

	return frame, offset, nil
}

func (t *Translator) Read(addr int) (byte, error) {
	frame, offset, err := t.translate(addr)
	if err != nil {
		return 0, err
	}

	return t.phys.Load(frame, offset)
}

func (t *Translator) Write(addr int, v byte) error {
	frame, offset, err := t.translate(addr)
	if err != nil {
		return err
	}

	return t.phys.Store(frame, offset, v)
}
