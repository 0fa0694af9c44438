// Package perf is an opt-in timing log for the discovery poll and
// reconciliation. Set PORTKEEPER_PERF=1 to enable it.
package perf

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/b/portkeeper/pkg/paths"
)

var (
	enabled  = os.Getenv("PORTKEEPER_PERF") == "1"
	out      io.Writer
	logMutex sync.Mutex
	initOnce sync.Once
)

func open() {
	initOnce.Do(func() {
		if !enabled {
			return
		}
		if _, err := paths.EnsureStateDir(); err != nil {
			enabled = false
			return
		}
		f, err := os.OpenFile(paths.StatePath("perf.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			enabled = false
			return
		}
		out = f
	})
}

// Timer tracks elapsed time for a named operation
type Timer struct {
	name  string
	start time.Time
}

// Start begins timing an operation
func Start(name string) *Timer {
	open()
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop ends timing and logs the result
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Log("%s: %v", t.name, elapsed)
	return elapsed
}

// Track is a convenience function that times a function call
func Track(name string, fn func()) time.Duration {
	t := Start(name)
	fn()
	return t.Stop()
}

// Log writes a custom message to the perf log
func Log(format string, args ...interface{}) {
	open()
	logMutex.Lock()
	defer logMutex.Unlock()
	if !enabled || out == nil {
		return
	}
	fmt.Fprintf(out, "%s: ", time.Now().Format("15:04:05.000"))
	fmt.Fprintf(out, format+"\n", args...)
}

// IsEnabled returns whether performance logging is enabled
func IsEnabled() bool {
	return enabled
}

// SetOutputForTest enables the timing log and redirects it to w.
func SetOutputForTest(w io.Writer) {
	initOnce.Do(func() {})
	logMutex.Lock()
	enabled = w != nil
	out = w
	logMutex.Unlock()
}
