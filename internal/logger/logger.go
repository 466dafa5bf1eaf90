// Package logger provides verbose logging for Arkiv.
// When verbose mode is enabled via the --verbose flag, debug messages
// are printed to stderr to help users follow the parse, build and
// retrieval pipeline. Warnings and errors are always printed.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "[DEBUG] "+format+"\n", args...)
	}
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "[INFO] "+format+"\n", args...)
	}
}

// Warn prints a warning message. Warnings are printed regardless of
// verbose mode: they surface build-report problems the user should see.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	fmt.Fprintf(output, "[WARN] "+format+"\n", args...)
}

// Error prints an error message regardless of verbose mode.
func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	fmt.Fprintf(output, "[ERROR] "+format+"\n", args...)
}
