// Package procscan reads the OS tables portkeeper correlates: TCP listeners
// by owning PID, the process list, and per-process command lines.
package procscan

import (
	"sort"
	"strings"
	"time"
)

// PortTable lists TCP sockets in LISTEN state by owning PID. Failures are
// absorbed by the implementation and yield an empty map.
type PortTable interface {
	Listeners() map[int][]int
}

// ProcessTable enumerates running processes. Processes that vanish while
// being read are skipped.
type ProcessTable interface {
	Processes() ([]Process, error)
}

// CommandLines looks up a process's command line. ok is false when the
// process is gone or unreadable.
type CommandLines interface {
	CommandLine(pid int) (info CommandInfo, ok bool)
}

// Process is one row of the process table.
type Process struct {
	PID            int
	Name           string
	ExecutablePath string
	StartTime      time.Time
	// Denied is set when the executable path or start time could not be
	// read for lack of permission.
	Denied bool
}

type CommandInfo struct {
	CommandLine      string
	WorkingDirectory string
}

// Source bundles the three tables.
type Source interface {
	PortTable
	ProcessTable
	CommandLines
}

// QuoteArgs joins argv into one command line that shell-style splitting
// turns back into the same argv.
func QuoteArgs(args []string) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	if !strings.ContainsAny(a, " \t\r\n\"'\\#") {
		return a
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range a {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// dedupePorts sorts ports ascending and drops repeats (a process listening
// on the same port over IPv4 and IPv6).
func dedupePorts(ports []int) []int {
	sort.Ints(ports)
	out := ports[:0]
	for i, p := range ports {
		if i > 0 && p == ports[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}
