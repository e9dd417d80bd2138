package kernel

import (
	"strings"

	"github.com/pkg/errors"
)

type Priority int

const (
	Realtime Priority = iota
	Interactive
	Background

	numPriorities
)

var ErrBadPriority = errors.New("bad priority")

func (p Priority) String() string {
	switch p {
	case Realtime:
		return "realtime"
	case Interactive:
		return "interactive"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

func (p Priority) valid() bool {
	return p >= Realtime && p < numPriorities
}

// demoted is one step down; background stays background.
func (p Priority) demoted() Priority {
	if p >= Background {
		return Background
	}

	return p + 1
}

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(s) {
	case "realtime", "rt":
		return Realtime, nil
	case "interactive":
		return Interactive, nil
	case "background", "bg":
		return Background, nil
	default:
		return Background, errors.Wrapf(ErrBadPriority, "%q", s)
	}
}
