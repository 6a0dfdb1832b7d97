// Package ktrace is a leveled, printf-style tracer matching the
// TracePrintf(level, format, ...) idiom the original C kernel uses
// throughout (kernelStart.c, syscall_IO.c, trapHandlers.c, ...), rather
// than structured key/value logging -- nothing in the corpus reaches
// for log/slog for kernel-internal tracing, so neither do we.
package ktrace

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

var (
	verbosity int32
	out       io.Writer = os.Stderr
)

// SetVerbosity sets the trace level; Tracef calls at or below it print.
func SetVerbosity(level int) {
	atomic.StoreInt32(&verbosity, int32(level))
}

// SetOutput redirects trace output, mainly for tests.
func SetOutput(w io.Writer) {
	out = w
}

// Tracef prints format/args if level is at or below the current
// verbosity, mirroring TracePrintf(level, format, ...).
func Tracef(level int, format string, args ...any) {
	if int32(level) > atomic.LoadInt32(&verbosity) {
		return
	}
	fmt.Fprintf(out, format, args...)
}
