package device

import (
	"encoding/binary"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// RandomDevice serves reproducible random byte streams, one per open id.
type RandomDevice struct {
	open *slots[*rand.Rand]
}

func NewRandomDevice(n int) *RandomDevice {
	return &RandomDevice{open: newSlots[*rand.Rand](n)}
}

// Seed turns the text after "random" into a generator seed. Numbers are
// used as is; other text is hashed so the same text gives the same stream.
func Seed(s string) int64 {
	s = strings.TrimSpace(s)

	if s == "" {
		return time.Now().UnixNano()
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}

	sum := blake2b.Sum256([]byte(s))
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}

func (r *RandomDevice) Open(seed string) (int, error) {
	return r.open.add(rand.New(rand.NewSource(Seed(seed))))
}

func (r *RandomDevice) Close(id int) error {
	_, err := r.open.remove(id)
	return err
}

func (r *RandomDevice) Read(id, n int) ([]byte, error) {
	g, err := r.open.get(id)
	if err != nil {
		return nil, err
	}

	if n > MaxRead {
		return nil, errors.Wrapf(ErrTooLarge, "read of %d bytes", n)
	}

	if n < 0 {
		n = 0
	}

	buf := make([]byte, n)
	g.Read(buf)

	return buf, nil
}

// Seek advances the stream by discarding pos bytes.
func (r *RandomDevice) Seek(id, pos int) error {
	_, err := r.Read(id, pos)
	return err
}

// Write is accepted and ignored.
func (r *RandomDevice) Write(id int, data []byte) (int, error) {
	if _, err := r.open.get(id); err != nil {
		return -1, err
	}

	return 0, nil
}
