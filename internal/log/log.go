// Package log prints operator-facing progress to stderr with a colored
// level tag and elapsed time since process start.
package log

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
)

// Verbose enables Debugf output (the --verbose flag).
var Verbose bool

var t0 = time.Now()

var (
	debugTag = color.New(color.FgBlue).Sprint("DEBUG")
	infoTag  = "INFO"
	warnTag  = color.New(color.FgYellow).Sprint("WARN")
	errorTag = color.New(color.FgHiRed).Sprint("ERROR")
)

func emit(tag, format string, args ...interface{}) {
	dur := time.Since(t0)
	fmt.Fprintf(os.Stderr, "[%s][%d.%ds] %s\n",
		tag, int(dur.Seconds()), int(dur.Milliseconds())%1000/100,
		fmt.Sprintf(format, args...))
}

// Debugf prints only when Verbose is set.
func Debugf(format string, args ...interface{}) {
	if Verbose {
		emit(debugTag, format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	emit(infoTag, format, args...)
}

func Warnf(format string, args ...interface{}) {
	emit(warnTag, format, args...)
}

func Errorf(format string, args ...interface{}) {
	emit(errorTag, format, args...)
}
