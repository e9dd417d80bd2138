package memory

// PageTable maps virtual page index to physical frame for one process.
type PageTable struct {
	entries []int
}

func NewPageTable(pages int) *PageTable {
	pt := &PageTable{
		entries: make([]int, pages),
	}

	for i := range pt.entries {
		pt.entries[i] = Unmapped
	}

	return pt
}

func (pt *PageTable) Len() int {
	return len(pt.entries)
}

func (pt *PageTable) Contains(vpage int) bool {
	return vpage >= 0 && vpage < len(pt.entries)
}

func (pt *PageTable) Lookup(vpage int) (int, bool) {
	if !pt.Contains(vpage) {
		return Unmapped, false
	}

	frame := pt.entries[vpage]
	return frame, frame != Unmapped
}

func (pt *PageTable) Map(vpage, frame int) {
	pt.entries[vpage] = frame
}

// Unmap clears the entry and returns the frame it held.
func (pt *PageTable) Unmap(vpage int) (int, bool) {
	frame, ok := pt.Lookup(vpage)
	if !ok {
		return Unmapped, false
	}

	pt.entries[vpage] = Unmapped
	return frame, true
}

// FindFree returns the first index of a run of n unmapped entries, or -1.
func (pt *PageTable) FindFree(n int) int {
	if n <= 0 {
		return -1
	}

	run := 0
	for i, frame := range pt.entries {
		if frame != Unmapped {
			run = 0
			continue
		}

		run++
		if run == n {
			return i - (n - 1)
		}
	}

	return -1
}

// Mapped returns the number of mapped entries.
func (pt *PageTable) Mapped() int {
	var n int
	for _, frame := range pt.entries {
		if frame != Unmapped {
			n++
		}
	}

	return n
}

// Reset unmaps every entry, calling release with each frame that was held.
func (pt *PageTable) Reset(release func(frame int)) {
	for i, frame := range pt.entries {
		if frame == Unmapped {
			continue
		}

		pt.entries[i] = Unmapped

		if release != nil {
			release(frame)
		}
	}
}
