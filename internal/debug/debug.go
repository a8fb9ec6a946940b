// Package debug provides conditional trace logging, gated by the
// LEINDEX_DEBUG environment variable or an ldflags override, with zero
// formatting cost when disabled. When the engine serves the stdio tool
// protocol, traces must not touch stdout; RPC mode reroutes them to stderr.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EnableDebug can be overridden at build time:
// go build -ldflags "-X github.com/scooter-lacroix/leindex/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu      sync.Mutex
	out     io.Writer
	enabled = EnableDebug == "true" || os.Getenv("LEINDEX_DEBUG") != ""
	rpcMode bool
)

func init() {
	if enabled {
		out = os.Stderr
	}
}

// Enabled reports whether tracing is active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled && out != nil
}

// SetOutput redirects traces; nil disables them.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	enabled = w != nil
}

// SetRPCMode keeps traces off stdout while the line protocol owns it.
func SetRPCMode(on bool) {
	mu.Lock()
	defer mu.Unlock()
	rpcMode = on
	if on && enabled {
		out = os.Stderr
	}
}

// Logf writes one timestamped trace line. Formatting is skipped entirely
// when tracing is off.
func Logf(format string, args ...any) {
	mu.Lock()
	w := out
	on := enabled
	mu.Unlock()
	if !on || w == nil {
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}
