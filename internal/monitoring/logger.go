package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf is the verbose diagnostic logger. It is a no-op unless enabled
// with SetVerbose, so hot paths can log freely without flooding normal runs.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose routes Debugf through Logf when on, and back to a no-op when off.
func SetVerbose(on bool) {
	if on {
		Debugf = func(format string, v ...interface{}) {
			Logf(format, v...)
		}
		return
	}
	Debugf = func(string, ...interface{}) {}
}
