package memory

const TLBSlots = 2

// Entry is one TLB slot. A slot whose VirtualPage is Unmapped is empty.
type Entry struct {
	VirtualPage int
	Frame       int
}

// TLB caches virtual page to frame translations. It is not tagged by
// process, so it must be cleared on every process switch.
type TLB struct {
	slots [TLBSlots]Entry
	rand  Rand
}

func NewTLB(r Rand) *TLB {
	t := &TLB{rand: r}
	t.Clear()
	return t
}

func (t *TLB) Lookup(vpage int) (int, bool) {
	if vpage == Unmapped {
		return Unmapped, false
	}

	for _, e := range t.slots {
		if e.VirtualPage == vpage {
			return e.Frame, true
		}
	}

	return Unmapped, false
}

// Install places the mapping in a randomly chosen slot and returns the
// slot index.
func (t *TLB) Install(vpage, frame int) int {
	slot := t.rand.Intn(TLBSlots)
	t.slots[slot] = Entry{VirtualPage: vpage, Frame: frame}
	return slot
}

// Invalidate drops any slot caching vpage.
func (t *TLB) Invalidate(vpage int) {
	for i, e := range t.slots {
		if e.VirtualPage == vpage {
			t.slots[i] = Entry{VirtualPage: Unmapped, Frame: Unmapped}
		}
	}
}

func (t *TLB) Clear() {
	for i := range t.slots {
		t.slots[i] = Entry{VirtualPage: Unmapped, Frame: Unmapped}
	}
}

func (t *TLB) Entries() [TLBSlots]Entry {
	return t.slots
}
