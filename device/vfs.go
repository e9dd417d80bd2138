package device

import (
	"strings"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/coopos/log"
)

type mount struct {
	dev Device
	id  int
}

// VFS routes a descriptor such as "random 42" or "file notes.txt" to the
// backend named by its first word.
type VFS struct {
	l hclog.Logger

	backends map[string]Device
	open     *slots[mount]
}

func NewVFS(root string) *VFS {
	return &VFS{
		l: log.Named("vfs"),
		backends: map[string]Device{
			"random": NewRandomDevice(DefaultSlots),
			"file":   NewFileDevice(root, DefaultSlots),
		},
		open: newSlots[mount](DefaultSlots),
	}
}

func (v *VFS) Open(desc string) (int, error) {
	fields := strings.SplitN(strings.TrimSpace(desc), " ", 2)

	kind := fields[0]

	var arg string
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}

	dev, ok := v.backends[kind]
	if !ok {
		return -1, errors.Wrapf(ErrUnknownDevice, "descriptor %q", desc)
	}

	if kind == "file" && arg == "" {
		return -1, errors.Wrapf(ErrMissingName, "descriptor %q", desc)
	}

	// Reserve our slot first so a full table does not leak a backend id.
	id, err := v.open.add(mount{})
	if err != nil {
		return -1, err
	}

	devId, err := dev.Open(arg)
	if err != nil {
		v.open.remove(id)
		return -1, err
	}

	v.open.items[id] = mount{dev: dev, id: devId}

	v.l.Trace("device-open", "desc", desc, "id", id, "backend-id", devId)

	return id, nil
}

func (v *VFS) Close(id int) error {
	m, err := v.open.remove(id)
	if err != nil {
		return err
	}

	v.l.Trace("device-close", "id", id)

	return m.dev.Close(m.id)
}

func (v *VFS) Read(id, n int) ([]byte, error) {
	m, err := v.open.get(id)
	if err != nil {
		return nil, err
	}

	return m.dev.Read(m.id, n)
}

func (v *VFS) Seek(id, pos int) error {
	m, err := v.open.get(id)
	if err != nil {
		return err
	}

	return m.dev.Seek(m.id, pos)
}

func (v *VFS) Write(id int, data []byte) (int, error) {
	m, err := v.open.get(id)
	if err != nil {
		return -1, err
	}

	return m.dev.Write(m.id, data)
}
