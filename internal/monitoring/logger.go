// Package monitoring holds the shared diagnostic logger used across the
// detection pipeline. Long-running scans and daemon sweeps report progress
// through Logf so one call can redirect or silence all of it.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
// Components that emit periodic progress (baseline construction, region
// scans, advisory fetches) call it instead of logging directly.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil argument installs a no-op
// logger, which is how tests mute scan progress output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
