package memory

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type slotRand struct {
	slots []int
}

func (s *slotRand) Intn(n int) int {
	if len(s.slots) == 0 {
		return 0
	}

	v := s.slots[0]
	s.slots = s.slots[1:]
	return v % n
}

type fakeMapper struct {
	tlb   *TLB
	pages *PageTable
	calls int
}

func (f *fakeMapper) GetMapping(vpage int) error {
	f.calls++

	frame, ok := f.pages.Lookup(vpage)
	if !ok {
		return ErrSegmentationFault
	}

	f.tlb.Install(vpage, frame)
	return nil
}

func TestFrameTable(t *testing.T) {
	n := neko.Modern(t)

	n.It("hands out the lowest free frame", func(t *testing.T) {
		ft := NewFrameTable(4)

		a, ok := ft.Allocate()
		require.True(t, ok)
		require.Equal(t, 0, a)

		b, ok := ft.Allocate()
		require.True(t, ok)
		require.Equal(t, 1, b)

		require.NoError(t, ft.Release(a))

		c, ok := ft.Allocate()
		require.True(t, ok)
		require.Equal(t, 0, c)
		require.Equal(t, 2, ft.Free())
	})

	n.It("reports exhaustion", func(t *testing.T) {
		ft := NewFrameTable(1)

		_, ok := ft.Allocate()
		require.True(t, ok)

		_, ok = ft.Allocate()
		require.False(t, ok)
		require.Equal(t, 0, ft.Free())
	})

	n.It("rejects releasing a frame that is not leased", func(t *testing.T) {
		ft := NewFrameTable(2)

		err := ft.Release(1)
		require.Equal(t, ErrBadFrame, errors.Cause(err))

		err = ft.Release(5)
		require.Equal(t, ErrBadFrame, errors.Cause(err))
	})

	n.Meow()
}

func TestPageTable(t *testing.T) {
	n := neko.Modern(t)

	n.It("starts fully unmapped", func(t *testing.T) {
		pt := NewPageTable(4)

		for i := 0; i < pt.Len(); i++ {
			_, ok := pt.Lookup(i)
			require.False(t, ok)
		}

		require.Equal(t, 0, pt.Mapped())
	})

	n.It("finds the first run that is long enough", func(t *testing.T) {
		pt := NewPageTable(6)
		pt.Map(1, 10)
		pt.Map(3, 11)

		require.Equal(t, 0, pt.FindFree(1))
		require.Equal(t, 4, pt.FindFree(2))
		require.Equal(t, -1, pt.FindFree(3))
		require.Equal(t, -1, pt.FindFree(0))
	})

	n.It("unmaps and reports the old frame", func(t *testing.T) {
		pt := NewPageTable(2)
		pt.Map(1, 7)

		frame, ok := pt.Unmap(1)
		require.True(t, ok)
		require.Equal(t, 7, frame)

		_, ok = pt.Unmap(1)
		require.False(t, ok)

		_, ok = pt.Unmap(9)
		require.False(t, ok)
	})

	n.It("releases every held frame on reset", func(t *testing.T) {
		pt := NewPageTable(4)
		pt.Map(0, 3)
		pt.Map(2, 5)

		var released []int
		pt.Reset(func(frame int) { released = append(released, frame) })

		require.Equal(t, []int{3, 5}, released)
		require.Equal(t, 0, pt.Mapped())
	})

	n.Meow()
}

func TestTLB(t *testing.T) {
	n := neko.Modern(t)

	n.It("does not alias virtual page 0 when cleared", func(t *testing.T) {
		tlb := NewTLB(rand.New(rand.NewSource(1)))

		_, ok := tlb.Lookup(0)
		require.False(t, ok)

		for _, e := range tlb.Entries() {
			require.Equal(t, Unmapped, e.VirtualPage)
		}
	})

	n.It("installs into the slot chosen by the random source", func(t *testing.T) {
		tlb := NewTLB(&slotRand{slots: []int{1, 0, 1}})

		require.Equal(t, 1, tlb.Install(4, 40))
		require.Equal(t, 0, tlb.Install(5, 50))

		frame, ok := tlb.Lookup(4)
		require.True(t, ok)
		require.Equal(t, 40, frame)

		require.Equal(t, 1, tlb.Install(6, 60))

		_, ok = tlb.Lookup(4)
		require.False(t, ok)

		frame, ok = tlb.Lookup(5)
		require.True(t, ok)
		require.Equal(t, 50, frame)
	})

	n.It("forgets everything on clear and one page on invalidate", func(t *testing.T) {
		tlb := NewTLB(&slotRand{slots: []int{0, 1}})
		tlb.Install(1, 10)
		tlb.Install(2, 20)

		tlb.Invalidate(1)

		_, ok := tlb.Lookup(1)
		require.False(t, ok)

		_, ok = tlb.Lookup(2)
		require.True(t, ok)

		tlb.Clear()

		_, ok = tlb.Lookup(2)
		require.False(t, ok)
	})

	n.Meow()
}

func TestTranslator(t *testing.T) {
	n := neko.Modern(t)

	setup := func() (*Translator, *fakeMapper, *TLB) {
		phys := NewPhysical(16, 4)
		tlb := NewTLB(&slotRand{})
		pt := NewPageTable(4)
		pt.Map(0, 2)
		pt.Map(1, 3)

		m := &fakeMapper{tlb: tlb, pages: pt}

		return NewTranslator(phys, tlb, m), m, tlb
	}

	n.It("consults the mapper once per cached page", func(t *testing.T) {
		tr, m, _ := setup()

		require.NoError(t, tr.Write(5, 42))
		require.Equal(t, 1, m.calls)

		v, err := tr.Read(5)
		require.NoError(t, err)
		require.Equal(t, byte(42), v)
		require.Equal(t, 1, m.calls)
		require.Equal(t, 1, tr.Misses())
	})

	n.It("goes back to the mapper after the TLB is cleared", func(t *testing.T) {
		tr, m, tlb := setup()

		require.NoError(t, tr.Write(17, 9))
		tlb.Clear()

		v, err := tr.Read(17)
		require.NoError(t, err)
		require.Equal(t, byte(9), v)
		require.Equal(t, 2, m.calls)
	})

	n.It("writes through to the mapped frame", func(t *testing.T) {
		tr, _, _ := setup()

		require.NoError(t, tr.Write(16, 77))

		v, err := tr.phys.Load(3, 0)
		require.NoError(t, err)
		require.Equal(t, byte(77), v)
	})

	n.It("surfaces the mapper's fault for unmapped pages", func(t *testing.T) {
		tr, _, _ := setup()

		_, err := tr.Read(40)
		require.Equal(t, ErrSegmentationFault, errors.Cause(err))
	})

	n.It("rejects negative addresses", func(t *testing.T) {
		tr, m, _ := setup()

		err := tr.Write(-1, 1)
		require.Equal(t, ErrInvalidMemoryAccess, errors.Cause(err))
		require.Equal(t, 0, m.calls)
	})

	n.Meow()
}
