package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// L is the process-wide logger. Components hang named sub-loggers off it.
var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name:            "coopos",
		IncludeLocation: false,
	})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// Named returns a sub-logger of L for the given component.
func Named(component string) hclog.Logger {
	return L.Named(component)
}
