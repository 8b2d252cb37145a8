// Package persist holds the small amount of filesystem-facing plumbing
// this runtime needs outside the GC itself: a startup/shutdown-bracketed
// log file, used by cmd/hhgcbench to record collection statistics
// alongside whatever workload it is driving.
package persist

import (
	"io"
	"log"
	"os"
	"time"
)

// Logger wraps the standard library's log.Logger with a STARTUP/SHUTDOWN
// banner convention: every log file opens with a timestamped STARTUP
// line and is guaranteed to end with a SHUTDOWN line once Close is
// called, so a truncated log (no SHUTDOWN) is itself evidence of an
// unclean exit.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger opens (creating if necessary) the file at logFilename for
// appending and returns a Logger that writes a STARTUP banner to it
// immediately.
func NewLogger(logFilename string) (*Logger, error) {
	file, err := os.OpenFile(logFilename, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	logger := log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC)
	fl := &Logger{Logger: logger, file: file}
	fl.Println("STARTUP: Log file started logging at", time.Now().Format(time.RFC3339))
	return fl, nil
}

// Close writes a SHUTDOWN line and closes the underlying file. Calling
// Close more than once returns an error from the second call onward,
// mirroring os.File's own double-close behavior.
func (fl *Logger) Close() error {
	fl.Println("SHUTDOWN: Log file closing at", time.Now().Format(time.RFC3339))
	return fl.file.Close()
}

// Writer exposes the underlying file so that callers needing an
// io.Writer (e.g. to also tee collection stats to stdout via io.MultiWriter)
// can compose with it directly.
func (fl *Logger) Writer() io.Writer {
	return fl.file
}
