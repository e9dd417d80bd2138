// Package device provides the I/O collaborators processes reach through
// the kernel: a virtual file system that routes a descriptor string to a
// seeded random byte stream or to a file under a root directory.
package device

import (
	"github.com/pkg/errors"
)

const DefaultSlots = 10

// MaxRead bounds a single Read, and a Seek on the random stream.
const MaxRead = 1 << 20

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrMissingName   = errors.New("missing file name")
	ErrNoFreeSlot    = errors.New("no free device slot")
	ErrNotOpen       = errors.New("device not open")
	ErrTooLarge      = errors.New("request too large")
)

// Device is the capability the kernel delegates I/O to. Ids are the
// device's own handles, not the per-process handles the kernel hands out.
type Device interface {
	Open(desc string) (int, error)
	Close(id int) error
	Read(id, n int) ([]byte, error)
	Seek(id, pos int) error
	Write(id int, data []byte) (int, error)
}

// slots is a fixed size table of open backend state.
type slots[T any] struct {
	used  []bool
	items []T
}

func newSlots[T any](n int) *slots[T] {
	return &slots[T]{
		used:  make([]bool, n),
		items: make([]T, n),
	}
}

func (s *slots[T]) add(v T) (int, error) {
	for i, used := range s.used {
		if !used {
			s.used[i] = true
			s.items[i] = v
			return i, nil
		}
	}

	return -1, ErrNoFreeSlot
}

func (s *slots[T]) get(id int) (T, error) {
	var zero T

	if id < 0 || id >= len(s.used) || !s.used[id] {
		return zero, errors.Wrapf(ErrNotOpen, "id %d", id)
	}

	return s.items[id], nil
}

func (s *slots[T]) remove(id int) (T, error) {
	v, err := s.get(id)
	if err != nil {
		return v, err
	}

	var zero T
	s.used[id] = false
	s.items[id] = zero

	return v, nil
}
