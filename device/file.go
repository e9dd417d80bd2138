package device

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileDevice opens read-write files confined under Root.
type FileDevice struct {
	Root string

	open *slots[*os.File]
}

func NewFileDevice(root string, n int) *FileDevice {
	return &FileDevice{
		Root: root,
		open: newSlots[*os.File](n),
	}
}

func (f *FileDevice) path(name string) string {
	return filepath.Join(f.Root, filepath.Clean("/"+name))
}

func (f *FileDevice) Open(name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1, ErrMissingName
	}

	fh, err := os.OpenFile(f.path(name), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return -1, errors.Wrapf(err, "opening %s", name)
	}

	id, err := f.open.add(fh)
	if err != nil {
		fh.Close()
		return -1, err
	}

	return id, nil
}

func (f *FileDevice) Close(id int) error {
	fh, err := f.open.remove(id)
	if err != nil {
		return err
	}

	return fh.Close()
}

// Read returns up to n bytes; fewer at end of file.
func (f *FileDevice) Read(id, n int) ([]byte, error) {
	fh, err := f.open.get(id)
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

	sz, err := io.ReadFull(fh, buf)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
		return buf[:sz], nil
	default:
		return nil, err
	}
}

func (f *FileDevice) Seek(id, pos int) error {
	fh, err := f.open.get(id)
	if err != nil {
		return err
	}

	_, err = fh.Seek(int64(pos), io.SeekStart)
	return err
}

func (f *FileDevice) Write(id int, data []byte) (int, error) {
	fh, err := f.open.get(id)
	if err != nil {
		return -1, err
	}

	n, err := fh.Write(data)
	if err != nil {
		return -1, err
	}

	return n, nil
}
