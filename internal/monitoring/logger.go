// Package monitoring carries the package-level diagnostic logger shared by
// the pipeline stages and stores. Batch runs log to stderr by default;
// tests mute or capture the logger via SetLogger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or
// mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that routes through Logf with a fixed component
// prefix, e.g. "[pipeline] scored 120 vehicles". The indirection is resolved
// at call time so SetLogger keeps working after a Prefixed logger has been
// handed out.
func Prefixed(component string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+component+"] "+format, v...)
	}
}
