// Package debug provides file-based diagnostic logging, separate from the
// stderr progress log so it can stay on across piped invocations.
package debug

import (
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once   sync.Once
	logger *log.Logger
)

// Logf writes a diagnostic line to the file named by GFABASE_DEBUG_LOG.
// It is a no-op when the variable is unset.
func Logf(format string, args ...interface{}) {
	once.Do(func() {
		path := os.Getenv("GFABASE_DEBUG_LOG")
		if path == "" {
			return
		}
		logger = log.New(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    16, // MiB
			MaxBackups: 2,
		}, "", log.LstdFlags|log.Lmicroseconds)
	})
	if logger != nil {
		logger.Output(2, fmt.Sprintf(format, args...)) //nolint:errcheck
	}
}
